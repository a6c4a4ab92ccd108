package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Operation string

const (
	OpCreateToken   Operation = "create_token"
	OpApprove       Operation = "approve"
	OpBuy           Operation = "buy"
	OpSell          Operation = "sell"
	OpSetContentURI Operation = "set_content_uri"
	OpMint          Operation = "mint"
)

type Status string

const (
	// StatusPending is recorded before the transaction is sent.
	StatusPending Status = "pending"
	// StatusSubmitted means the node accepted the transaction.
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	// StatusUnknown means confirmation timed out; the transaction may still be mined.
	StatusUnknown Status = "unknown"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusConfirmed, StatusFailed, StatusUnknown},
	StatusUnknown:   {StatusConfirmed, StatusFailed, StatusUnknown},
}

func canTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrEntryNotFound     = errors.New("journal entry not found")
	ErrInvalidTransition = errors.New("invalid journal transition")
	ErrInvalidEntry      = errors.New("invalid journal entry")
)

// Entry is the local record of one on-chain write.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Operation Operation `json:"operation"`
	ProjectID string    `json:"project_id,omitempty"`
	Account   string    `json:"account"`
	Target    string    `json:"target"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	// Result is what a confirmed write produced, e.g. the address of a created token.
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Journal records the two phases of every write: pending before submission,
// then confirmed, failed or unknown after.
type Journal interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, txHash string) error
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkUnknown(ctx context.Context, id uuid.UUID, reason string) error
	SetResult(ctx context.Context, id uuid.UUID, result string) error
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	ListOpen(ctx context.Context) ([]Entry, error)
}

// Store persists entries. Load returns ErrEntryNotFound for unknown IDs.
type Store interface {
	Load(ctx context.Context, id uuid.UUID) (Entry, error)
	Save(ctx context.Context, entry Entry) error
	ListOpen(ctx context.Context) ([]Entry, error)
}

type journal struct {
	store Store
	mu    sync.Mutex
	now   func() time.Time
}

// New returns a Journal enforcing the status state machine over store.
func New(store Store) Journal {
	return &journal{store: store, now: time.Now}
}

func (j *journal) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.Operation == "" {
		return Entry{}, fmt.Errorf("%w: operation is required", ErrInvalidEntry)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := j.now().UTC()
	entry.Status = StatusPending
	entry.TxHash = ""
	entry.Error = ""
	entry.CreatedAt = now
	entry.UpdatedAt = now

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.store.Save(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("failed to record %s: %w", entry.Operation, err)
	}
	return entry, nil
}

func (j *journal) MarkSubmitted(ctx context.Context, id uuid.UUID, txHash string) error {
	return j.transition(ctx, id, StatusSubmitted, func(e *Entry) { e.TxHash = txHash })
}

func (j *journal) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	return j.transition(ctx, id, StatusConfirmed, func(e *Entry) { e.Error = "" })
}

func (j *journal) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return j.transition(ctx, id, StatusFailed, func(e *Entry) { e.Error = reason })
}

func (j *journal) MarkUnknown(ctx context.Context, id uuid.UUID, reason string) error {
	return j.transition(ctx, id, StatusUnknown, func(e *Entry) { e.Error = reason })
}

// SetResult attaches the outcome of a confirmed entry without changing its status.
func (j *journal) SetResult(ctx context.Context, id uuid.UUID, result string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != StatusConfirmed {
		return fmt.Errorf("%w: result on %s entry %s", ErrInvalidTransition, entry.Status, id)
	}
	entry.Result = result
	entry.UpdatedAt = j.now().UTC()
	if err := j.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to update %s: %w", id, err)
	}
	return nil
}

func (j *journal) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	return j.store.Load(ctx, id)
}

func (j *journal) ListOpen(ctx context.Context) ([]Entry, error) {
	return j.store.ListOpen(ctx)
}

func (j *journal) transition(ctx context.Context, id uuid.UUID, to Status, mutate func(*Entry)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(entry.Status, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, entry.Status, to, id)
	}

	mutate(&entry)
	entry.Status = to
	entry.UpdatedAt = j.now().UTC()
	if err := j.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to update %s: %w", id, err)
	}
	return nil
}
