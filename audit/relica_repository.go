// Package audit provides a durable AuditRecord sink backed by the Relica
// query builder.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/msgflow"
	"github.com/coregx/msgflow/core"
)

// record is the Relica-mapped row for one audited transition.
type record struct {
	ID         int64     `json:"id" db:"id"`
	MessageID  string    `json:"messageId" db:"message_id"`
	Topic      string    `json:"topic" db:"topic"`
	FromState  string    `json:"fromState" db:"from_state"`
	ToState    string    `json:"toState" db:"to_state"`
	Event      string    `json:"event" db:"event"`
	Outcome    int       `json:"outcome" db:"outcome"`
	RetryCount int       `json:"retryCount" db:"retry_count"`
	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
}

// RelicaAuditRepository implements msgflow.AuditRepository over MySQL,
// PostgreSQL or SQLite via Relica, with a configurable table prefix.
type RelicaAuditRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewRelicaAuditRepository creates a RelicaAuditRepository with the default
// table prefix ("msgflow_").
func NewRelicaAuditRepository(sqlDB *sql.DB, driverName string) *RelicaAuditRepository {
	return &RelicaAuditRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "msgflow_"}
}

// NewRelicaAuditRepositoryWithPrefix creates a RelicaAuditRepository with a
// caller-supplied table prefix.
func NewRelicaAuditRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *RelicaAuditRepository {
	return &RelicaAuditRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *RelicaAuditRepository) tableName() string {
	return r.tablePrefix + "audit_log"
}

// RecordTransition inserts one audit row. Errors are wrapped with
// msgflow's error type.
func (r *RelicaAuditRepository) RecordTransition(ctx context.Context, rec msgflow.AuditRecord) error {
	row := record{
		MessageID:  rec.MessageID,
		Topic:      rec.Topic,
		FromState:  string(rec.FromState),
		ToState:    string(rec.ToState),
		Event:      string(rec.Event),
		Outcome:    int(rec.Outcome),
		RetryCount: rec.RetryCount,
		RecordedAt: rec.RecordedAt,
	}
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
		return msgflow.NewErrorWithCause(msgflow.ErrCodeConfiguration, "failed to insert audit record", err)
	}
	return nil
}

// FindByMessage retrieves up to limit audited transitions recorded for one
// message, oldest first, for post-mortem review.
func (r *RelicaAuditRepository) FindByMessage(ctx context.Context, messageID string, limit int) ([]msgflow.AuditRecord, error) {
	var rows []record
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("message_id = ?", messageID).
		OrderBy("recorded_at ASC").
		Limit(int64(limit)).
		All(&rows)
	if err != nil {
		return nil, msgflow.NewErrorWithCause(msgflow.ErrCodeConfiguration, "failed to query audit records", err)
	}

	out := make([]msgflow.AuditRecord, len(rows))
	for i, row := range rows {
		out[i] = msgflow.AuditRecord{
			MessageID:  row.MessageID,
			Topic:      row.Topic,
			FromState:  core.State(row.FromState),
			ToState:    core.State(row.ToState),
			Event:      core.Event(row.Event),
			Outcome:    core.Outcome(row.Outcome),
			RetryCount: row.RetryCount,
			RecordedAt: row.RecordedAt,
		}
	}
	return out, nil
}
