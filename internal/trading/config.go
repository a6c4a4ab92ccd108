package trading

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

// Path selects which contract executes swaps.
type Path string

const (
	PathLiquidityManager Path = "liquidity-manager"
	PathSwapHandler      Path = "swap-handler"
)

func ParsePath(s string) (Path, error) {
	switch Path(s) {
	case PathLiquidityManager, PathSwapHandler:
		return Path(s), nil
	case "":
		return PathLiquidityManager, nil
	}
	return "", fmt.Errorf("unknown trading path %q (want %s or %s)", s, PathLiquidityManager, PathSwapHandler)
}

func (p Path) contractName() string {
	if p == PathSwapHandler {
		return registry.SwapHandler
	}
	return registry.LiquidityManager
}

type Config struct {
	FeeTier         uint32
	DeadlineMinutes int
	Path            Path
	// WrappedNative overrides the WETH9 address read from the LiquidityManager.
	WrappedNative common.Address
	Observer      StateObserver
	Now           func() time.Time
}

func DefaultConfig() *Config {
	return &Config{
		FeeTier:         DefaultFeeTier,
		DeadlineMinutes: DefaultDeadlineMinutes,
		Path:            PathLiquidityManager,
		Now:             time.Now,
	}
}

func (c *Config) WithFeeTier(fee uint32) *Config {
	c.FeeTier = fee
	return c
}

func (c *Config) WithDeadlineMinutes(minutes int) *Config {
	c.DeadlineMinutes = minutes
	return c
}

func (c *Config) WithPath(path Path) *Config {
	c.Path = path
	return c
}

func (c *Config) WithWrappedNative(addr common.Address) *Config {
	c.WrappedNative = addr
	return c
}

func (c *Config) WithObserver(observer StateObserver) *Config {
	c.Observer = observer
	return c
}

func (c *Config) WithClock(now func() time.Time) *Config {
	c.Now = now
	return c
}

func (c *Config) Validate() error {
	if c.FeeTier == 0 || c.FeeTier > maxFeeTier {
		return fmt.Errorf("fee tier must be between 1 and %d, got %d", maxFeeTier, c.FeeTier)
	}
	if c.DeadlineMinutes <= 0 {
		return fmt.Errorf("deadline minutes must be positive, got %d", c.DeadlineMinutes)
	}
	if _, err := ParsePath(string(c.Path)); err != nil {
		return err
	}
	if c.Now == nil {
		return fmt.Errorf("clock is required")
	}
	return nil
}
