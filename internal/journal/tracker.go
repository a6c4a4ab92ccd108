package journal

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

// Tracker follows one write through the journal. A nil Journal makes every call a no-op.
// Failures after the pending record are logged, never returned: the write already happened.
type Tracker struct {
	journal   Journal
	logger    logging.Logger
	entry     Entry
	submitted bool
}

// Begin records the pending entry. The caller must not submit if this fails.
func Begin(ctx context.Context, j Journal, logger logging.Logger, entry Entry) (*Tracker, error) {
	t := &Tracker{journal: j, logger: logger, entry: entry}
	if j == nil {
		return t, nil
	}
	recorded, err := j.Record(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to journal pending %s: %w", entry.Operation, err)
	}
	t.entry = recorded
	return t, nil
}

func (t *Tracker) ID() uuid.UUID {
	return t.entry.ID
}

func (t *Tracker) Submitted(ctx context.Context, txHash common.Hash) {
	t.submitted = true
	if t.journal == nil {
		return
	}
	if err := t.journal.MarkSubmitted(ctx, t.entry.ID, txHash.Hex()); err != nil {
		t.logger.Error("Failed to journal submission", "entry", t.entry.ID, "tx_hash", txHash.Hex(), "error", err)
	}
}

// Finish records the outcome: nil confirms, a confirmation timeout marks the entry unknown,
// anything else fails it.
func (t *Tracker) Finish(ctx context.Context, err error) {
	if t.journal == nil {
		return
	}

	var markErr error
	switch {
	case err == nil:
		markErr = t.journal.MarkConfirmed(ctx, t.entry.ID)
	case t.submitted && chain.IsTimeout(err):
		markErr = t.journal.MarkUnknown(ctx, t.entry.ID, err.Error())
	default:
		markErr = t.journal.MarkFailed(ctx, t.entry.ID, err.Error())
	}
	if markErr != nil {
		t.logger.Error("Failed to journal outcome", "entry", t.entry.ID, "operation", t.entry.Operation, "error", markErr)
	}
}

// Result stores what the confirmed write produced.
func (t *Tracker) Result(ctx context.Context, result string) {
	if t.journal == nil {
		return
	}
	if err := t.journal.SetResult(ctx, t.entry.ID, result); err != nil {
		t.logger.Error("Failed to journal result", "entry", t.entry.ID, "operation", t.entry.Operation, "error", err)
	}
}
