package journal

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/pkg/datastore"
	"github.com/oxx-labs/oxx-backend/pkg/redis"
)

// fakeRedis implements RedisClient over maps.
type fakeRedis struct {
	mu   sync.Mutex
	kv   map[string]string
	sets map[string]map[string]struct{}
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{kv: map[string]string{}, sets: map[string]map[string]struct{}{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	case string:
		f.kv[key] = v
	default:
		return errors.New("unsupported value")
	}
	return nil
}

func (f *fakeRedis) SAdd(ctx context.Context, key string, members ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, m := range members {
		f.sets[key][m.(string)] = struct{}{}
	}
	return nil
}

func (f *fakeRedis) SRem(ctx context.Context, key string, members ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return nil
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

// fakeCQL emulates the journal_entries table behind the gocqlx session interface.
type fakeCQL struct {
	mu    sync.Mutex
	rows  map[gocql.UUID]journalRow
	stmts []string
}

func newFakeCQL() *fakeCQL {
	return &fakeCQL{rows: map[gocql.UUID]journalRow{}}
}

func (f *fakeCQL) Query(stmt string, names []string) datastore.GocqlxQueryer {
	f.mu.Lock()
	f.stmts = append(f.stmts, stmt)
	f.mu.Unlock()
	return &fakeQuery{db: f, stmt: stmt}
}

type fakeQuery struct {
	db     *fakeCQL
	stmt   string
	bound  *journalRow
	params map[string]interface{}
}

func (q *fakeQuery) WithContext(ctx context.Context) datastore.GocqlxQueryer { return q }

func (q *fakeQuery) BindStruct(data interface{}) datastore.GocqlxQueryer {
	q.bound = data.(*journalRow)
	return q
}

func (q *fakeQuery) BindMap(data map[string]interface{}) datastore.GocqlxQueryer {
	q.params = data
	return q
}

func (q *fakeQuery) ExecRelease() error {
	if !strings.HasPrefix(q.stmt, "INSERT INTO journal_entries") {
		return errors.New("unexpected statement " + q.stmt)
	}
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	q.db.rows[q.bound.ID] = *q.bound
	return nil
}

func (q *fakeQuery) GetRelease(dest interface{}) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	row, ok := q.db.rows[q.bound.ID]
	if !ok {
		return gocql.ErrNotFound
	}
	*dest.(*journalRow) = row
	return nil
}

func (q *fakeQuery) SelectRelease(dest interface{}) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	out := dest.(*[]journalRow)
	for _, row := range q.db.rows {
		if row.Status == q.params["status"] {
			*out = append(*out, row)
		}
	}
	return nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewRedisStore(newFakeRedis(), ""),
		"scylla": NewScyllaStore(newFakeCQL()),
	}
}

func TestJournal_Lifecycle_AllStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := New(store)

			entry, err := j.Record(ctx, Entry{Operation: OpBuy, ProjectID: "p1", Account: "0xabc", Target: "0xdef"})
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, entry.ID)
			assert.Equal(t, StatusPending, entry.Status)

			open, err := j.ListOpen(ctx)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, entry.ID, open[0].ID)

			require.NoError(t, j.MarkSubmitted(ctx, entry.ID, "0x01"))
			require.NoError(t, j.MarkConfirmed(ctx, entry.ID))

			got, err := j.Get(ctx, entry.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusConfirmed, got.Status)
			assert.Equal(t, "0x01", got.TxHash)
			assert.Equal(t, "p1", got.ProjectID)
			assert.Equal(t, OpBuy, got.Operation)

			open, err = j.ListOpen(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)

			err = j.MarkFailed(ctx, entry.ID, "late failure")
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestJournal_UnknownOutcome_StaysOpenUntilSettled(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := New(store)

			entry, err := j.Record(ctx, Entry{Operation: OpSell})
			require.NoError(t, err)
			require.NoError(t, j.MarkSubmitted(ctx, entry.ID, "0x02"))
			require.NoError(t, j.MarkUnknown(ctx, entry.ID, "timed out"))

			open, err := j.ListOpen(ctx)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, StatusUnknown, open[0].Status)
			assert.Equal(t, "timed out", open[0].Error)

			require.NoError(t, j.MarkFailed(ctx, entry.ID, "reverted"))
			open, err = j.ListOpen(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)
		})
	}
}

func TestJournal_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())

	entry, err := j.Record(ctx, Entry{Operation: OpApprove})
	require.NoError(t, err)

	assert.ErrorIs(t, j.MarkConfirmed(ctx, entry.ID), ErrInvalidTransition)
	assert.ErrorIs(t, j.MarkUnknown(ctx, entry.ID, "x"), ErrInvalidTransition)
	assert.ErrorIs(t, j.MarkSubmitted(ctx, uuid.New(), "0x01"), ErrEntryNotFound)

	_, err = j.Record(ctx, Entry{})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestJournal_Record_ResetsCallerSuppliedState(t *testing.T) {
	j := New(NewMemoryStore())

	entry, err := j.Record(context.Background(), Entry{Operation: OpMint, Status: StatusConfirmed, TxHash: "0xff"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Empty(t, entry.TxHash)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestFileStore_RequiresDirectory(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestFileStore_WritesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	j := New(store)
	_, err = j.Record(context.Background(), Entry{Operation: OpCreateToken})
	require.NoError(t, err)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0].Name(), ".json"))
}
