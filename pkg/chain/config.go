package chain

import (
	"fmt"
	"time"

	"github.com/oxx-labs/oxx-backend/pkg/retry"
)

const (
	DefaultConfirmationTimeout   = 2 * time.Minute
	DefaultPollInterval          = 2 * time.Second
	DefaultGasLimitBufferPercent = 20
)

// Config holds adapter settings. Writes are never retried, so only reads take a retry config.
type Config struct {
	ConfirmationTimeout   time.Duration
	PollInterval          time.Duration
	GasLimitBufferPercent uint64
	ReadRetry             *retry.RetryConfig
	Observer              Observer
}

func DefaultConfig() *Config {
	return &Config{
		ConfirmationTimeout:   DefaultConfirmationTimeout,
		PollInterval:          DefaultPollInterval,
		GasLimitBufferPercent: DefaultGasLimitBufferPercent,
		ReadRetry:             retry.DefaultRetryConfig(),
	}
}

func (c *Config) WithConfirmationTimeout(timeout time.Duration) *Config {
	c.ConfirmationTimeout = timeout
	return c
}

func (c *Config) WithPollInterval(interval time.Duration) *Config {
	c.PollInterval = interval
	return c
}

func (c *Config) WithGasLimitBuffer(percent uint64) *Config {
	c.GasLimitBufferPercent = percent
	return c
}

func (c *Config) WithReadRetry(cfg *retry.RetryConfig) *Config {
	c.ReadRetry = cfg
	return c
}

func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

func (c *Config) Validate() error {
	if c.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollInterval > c.ConfirmationTimeout {
		return fmt.Errorf("poll interval %v exceeds confirmation timeout %v", c.PollInterval, c.ConfirmationTimeout)
	}
	if c.GasLimitBufferPercent > 100 {
		return fmt.Errorf("gas limit buffer must be at most 100%%")
	}
	if c.ReadRetry != nil {
		if err := c.ReadRetry.Validate(); err != nil {
			return fmt.Errorf("invalid read retry config: %w", err)
		}
	}
	return nil
}

// Observer receives timing and outcome of every adapter operation.
type Observer interface {
	ObserveRead(method string, duration time.Duration, err error)
	ObserveSubmit(method string, err error)
	ObserveConfirmation(method string, duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveRead(string, time.Duration, error)         {}
func (noopObserver) ObserveSubmit(string, error)                      {}
func (noopObserver) ObserveConfirmation(string, time.Duration, error) {}
