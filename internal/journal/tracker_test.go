package journal

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

func TestTracker_Finish_MapsOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		submitted bool
		err       error
		want      Status
	}{
		{name: "confirmed", submitted: true, err: nil, want: StatusConfirmed},
		{name: "timeout", submitted: true, err: &chain.ConfirmationError{Reason: chain.ReasonTimeout}, want: StatusUnknown},
		{name: "reverted", submitted: true, err: &chain.ConfirmationError{Reason: chain.ReasonReverted}, want: StatusFailed},
		{name: "submission failed", submitted: false, err: chain.ErrSubmission, want: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			j := New(NewMemoryStore())

			tracker, err := Begin(ctx, j, logging.NewNoOpLogger(), Entry{Operation: OpBuy})
			require.NoError(t, err)
			if tt.submitted {
				tracker.Submitted(ctx, common.HexToHash("0x01"))
			}
			tracker.Finish(ctx, tt.err)

			got, err := j.Get(ctx, tracker.ID())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestTracker_NilJournal_IsNoOp(t *testing.T) {
	ctx := context.Background()
	tracker, err := Begin(ctx, nil, logging.NewNoOpLogger(), Entry{Operation: OpBuy})
	require.NoError(t, err)

	tracker.Submitted(ctx, common.HexToHash("0x01"))
	tracker.Finish(ctx, errors.New("boom"))
}

type failingStore struct{ Store }

func (failingStore) Save(ctx context.Context, entry Entry) error { return errors.New("disk full") }

func TestBegin_RecordFailure_ReturnsError(t *testing.T) {
	_, err := Begin(context.Background(), New(failingStore{NewMemoryStore()}), logging.NewNoOpLogger(), Entry{Operation: OpSell})
	assert.ErrorContains(t, err, "disk full")
}

func TestTracker_MarkFailure_IsLogged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	j := New(store)
	logger := new(logging.MockLogger)
	logger.SetupDefaultExpectations()

	tracker, err := Begin(ctx, j, logger, Entry{Operation: OpBuy})
	require.NoError(t, err)
	// pending -> confirmed is not a valid transition.
	tracker.Finish(ctx, nil)

	got, err := j.Get(ctx, tracker.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	logger.AssertCalled(t, "Error", "Failed to journal outcome", mock.Anything)
}

type receiptMap map[common.Hash]*types.Receipt

func (m receiptMap) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := m[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func TestReconcileOpen_SettlesMinedEntries(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())

	mined, _ := j.Record(ctx, Entry{Operation: OpBuy})
	require.NoError(t, j.MarkSubmitted(ctx, mined.ID, common.HexToHash("0xa1").Hex()))
	require.NoError(t, j.MarkUnknown(ctx, mined.ID, "timed out"))

	reverted, _ := j.Record(ctx, Entry{Operation: OpSell})
	require.NoError(t, j.MarkSubmitted(ctx, reverted.ID, common.HexToHash("0xb2").Hex()))

	stillPending, _ := j.Record(ctx, Entry{Operation: OpApprove})
	require.NoError(t, j.MarkSubmitted(ctx, stillPending.ID, common.HexToHash("0xc3").Hex()))

	source := receiptMap{
		common.HexToHash("0xa1"): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		common.HexToHash("0xb2"): {Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(11)},
	}

	settled, err := ReconcileOpen(ctx, j, source, nil, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	got, _ := j.Get(ctx, mined.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	got, _ = j.Get(ctx, reverted.ID)
	assert.Equal(t, StatusFailed, got.Status)
	got, _ = j.Get(ctx, stillPending.ID)
	assert.Equal(t, StatusSubmitted, got.Status)
}

type nilReceiptSource struct{}

func (nilReceiptSource) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func TestReconcileOpen_NilReceiptLeavesEntryOpen(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())
	entry, _ := j.Record(ctx, Entry{Operation: OpBuy})
	require.NoError(t, j.MarkSubmitted(ctx, entry.ID, common.HexToHash("0xa1").Hex()))

	settled, err := ReconcileOpen(ctx, j, nilReceiptSource{}, nil, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Zero(t, settled)

	got, _ := j.Get(ctx, entry.ID)
	assert.Equal(t, StatusSubmitted, got.Status)
}

func TestReconcileOpen_RunsSettlerForItsOperation(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())

	created, _ := j.Record(ctx, Entry{Operation: OpCreateToken, ProjectID: "p1"})
	require.NoError(t, j.MarkSubmitted(ctx, created.ID, common.HexToHash("0xa1").Hex()))
	require.NoError(t, j.MarkUnknown(ctx, created.ID, "timed out"))

	bought, _ := j.Record(ctx, Entry{Operation: OpBuy})
	require.NoError(t, j.MarkSubmitted(ctx, bought.ID, common.HexToHash("0xb2").Hex()))

	source := receiptMap{
		common.HexToHash("0xa1"): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		common.HexToHash("0xb2"): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(11)},
	}
	var seen []Entry
	settlers := map[Operation]Settler{
		OpCreateToken: func(ctx context.Context, entry Entry, receipt *types.Receipt) (string, error) {
			seen = append(seen, entry)
			return "0x00000000000000000000000000000000000000e5", nil
		},
	}

	settled, err := ReconcileOpen(ctx, j, source, settlers, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	require.Len(t, seen, 1)
	assert.Equal(t, "p1", seen[0].ProjectID)

	got, _ := j.Get(ctx, created.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "0x00000000000000000000000000000000000000e5", got.Result)
	got, _ = j.Get(ctx, bought.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Empty(t, got.Result)
}

func TestReconcileOpen_SettlerErrorRetriesNextPass(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())
	entry, _ := j.Record(ctx, Entry{Operation: OpCreateToken})
	require.NoError(t, j.MarkSubmitted(ctx, entry.ID, common.HexToHash("0xa1").Hex()))
	source := receiptMap{common.HexToHash("0xa1"): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}}

	calls := 0
	settlers := map[Operation]Settler{
		OpCreateToken: func(ctx context.Context, entry Entry, receipt *types.Receipt) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("project store unavailable")
			}
			return "token", nil
		},
	}

	settled, err := ReconcileOpen(ctx, j, source, settlers, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Zero(t, settled)
	got, _ := j.Get(ctx, entry.ID)
	assert.Equal(t, StatusSubmitted, got.Status)

	settled, err = ReconcileOpen(ctx, j, source, settlers, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	got, _ = j.Get(ctx, entry.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "token", got.Result)
}

func TestJournal_SetResult_RequiresConfirmedEntry(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())
	entry, _ := j.Record(ctx, Entry{Operation: OpCreateToken})

	assert.ErrorIs(t, j.SetResult(ctx, entry.ID, "token"), ErrInvalidTransition)

	tracker, err := Begin(ctx, j, logging.NewNoOpLogger(), Entry{Operation: OpCreateToken})
	require.NoError(t, err)
	tracker.Submitted(ctx, common.HexToHash("0xa1"))
	tracker.Finish(ctx, nil)
	tracker.Result(ctx, "token")

	got, err := j.Get(ctx, tracker.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "token", got.Result)
}
