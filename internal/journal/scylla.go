package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/scylladb/gocqlx/v2/qb"
	"github.com/scylladb/gocqlx/v2/table"

	"github.com/oxx-labs/oxx-backend/pkg/datastore"
)

var journalTable = table.New(table.Metadata{
	Name:    "journal_entries",
	Columns: []string{"id", "operation", "project_id", "account", "target", "tx_hash", "status", "error", "result", "created_at", "updated_at"},
	PartKey: []string{"id"},
})

type journalRow struct {
	ID        gocql.UUID `db:"id"`
	Operation string     `db:"operation"`
	ProjectID string     `db:"project_id"`
	Account   string     `db:"account"`
	Target    string     `db:"target"`
	TxHash    string     `db:"tx_hash"`
	Status    string     `db:"status"`
	Error     string     `db:"error"`
	Result    string     `db:"result"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func toRow(e Entry) journalRow {
	return journalRow{
		ID:        gocql.UUID(e.ID),
		Operation: string(e.Operation),
		ProjectID: e.ProjectID,
		Account:   e.Account,
		Target:    e.Target,
		TxHash:    e.TxHash,
		Status:    string(e.Status),
		Error:     e.Error,
		Result:    e.Result,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (r journalRow) entry() Entry {
	return Entry{
		ID:        uuid.UUID(r.ID),
		Operation: Operation(r.Operation),
		ProjectID: r.ProjectID,
		Account:   r.Account,
		Target:    r.Target,
		TxHash:    r.TxHash,
		Status:    Status(r.Status),
		Error:     r.Error,
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ScyllaStore persists entries in the journal_entries table, with a secondary index on status.
type ScyllaStore struct {
	session datastore.GocqlxSessioner
}

func NewScyllaStore(session datastore.GocqlxSessioner) *ScyllaStore {
	return &ScyllaStore{session: session}
}

func (s *ScyllaStore) Load(ctx context.Context, id uuid.UUID) (Entry, error) {
	stmt, names := journalTable.Get()
	row := journalRow{ID: gocql.UUID(id)}
	err := s.session.Query(stmt, names).WithContext(ctx).BindStruct(&row).GetRelease(&row)
	if errors.Is(err, gocql.ErrNotFound) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load journal entry: %w", err)
	}
	return row.entry(), nil
}

func (s *ScyllaStore) Save(ctx context.Context, entry Entry) error {
	stmt, names := journalTable.Insert()
	row := toRow(entry)
	if err := s.session.Query(stmt, names).WithContext(ctx).BindStruct(&row).ExecRelease(); err != nil {
		return fmt.Errorf("failed to store journal entry: %w", err)
	}
	return nil
}

func (s *ScyllaStore) ListOpen(ctx context.Context) ([]Entry, error) {
	stmt, names := qb.Select(journalTable.Name()).Columns(journalTable.Metadata().Columns...).Where(qb.Eq("status")).ToCql()

	var open []Entry
	for _, status := range []Status{StatusPending, StatusSubmitted, StatusUnknown} {
		var rows []journalRow
		err := s.session.Query(stmt, names).WithContext(ctx).
			BindMap(map[string]interface{}{"status": string(status)}).
			SelectRelease(&rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s journal entries: %w", status, err)
		}
		for _, r := range rows {
			open = append(open, r.entry())
		}
	}
	sortByCreation(open)
	return open, nil
}
