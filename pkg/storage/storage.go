package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound means the targeted entity is not in the local mirror.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicate means an entity with the same remote id already exists
	// for that kind.
	ErrDuplicate = errors.New("duplicate remote id")
)

// timeFormat is fixed-width so that text comparison in SQL matches
// chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS entities (
  local_id         TEXT NOT NULL,
  kind             TEXT NOT NULL,
  remote_id        TEXT NOT NULL,
  parent_remote_id TEXT,
  fields           TEXT NOT NULL,
  status           TEXT NOT NULL,
  remote_snapshot  TEXT,
  created_at       TEXT NOT NULL,
  updated_at       TEXT NOT NULL,
  UNIQUE(kind, remote_id)
);
CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_remote_id);
CREATE INDEX IF NOT EXISTS idx_entities_kind_status ON entities(kind, status);
CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(created_at);
CREATE TABLE IF NOT EXISTS audit_records (
  id          INTEGER PRIMARY KEY,
  kind        TEXT NOT NULL,
  remote_id   TEXT NOT NULL,
  action      TEXT NOT NULL,
  payload     TEXT,
  success     INTEGER NOT NULL CHECK (success IN (0,1)),
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_records(kind, remote_id, id);
	`); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Create inserts a new mirror record. The caller is expected to have a
// confirmed remote id already; creating twice for the same (kind, remote id)
// fails with ErrDuplicate.
func (d *DB) Create(ctx context.Context, e *Entity) error {
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt

	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO entities(local_id, kind, remote_id, parent_remote_id, fields, status, remote_snapshot, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.LocalID, string(e.Kind), e.RemoteID, nullIfEmpty(e.ParentRemoteID), fields,
		string(e.Status), nullIfEmpty(string(e.RemoteSnapshot)),
		e.CreatedAt.Format(timeFormat), e.UpdatedAt.Format(timeFormat))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByRemoteID fetches one entity, ErrNotFound if absent.
func (d *DB) GetByRemoteID(ctx context.Context, kind Kind, remoteID string) (*Entity, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT local_id, kind, remote_id, parent_remote_id, fields, status, remote_snapshot, created_at, updated_at
		 FROM entities WHERE kind = ? AND remote_id = ?`, string(kind), remoteID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListOptions controls selection when listing entities.
type ListOptions struct {
	Kind           Kind
	Status         Status
	ParentRemoteID string
}

// List returns entities of a kind ordered by descending creation time,
// optionally filtered by status or parent.
func (d *DB) List(ctx context.Context, opts ListOptions) ([]Entity, error) {
	where := "WHERE kind = ?"
	args := []interface{}{string(opts.Kind)}
	if opts.Status != "" {
		where += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.ParentRemoteID != "" {
		where += " AND parent_remote_id = ?"
		args = append(args, opts.ParentRemoteID)
	}

	q := `SELECT local_id, kind, remote_id, parent_remote_id, fields, status, remote_snapshot, created_at, updated_at
	 FROM entities ` + where + ` ORDER BY created_at DESC`
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Update rewrites the mutable columns of an existing entity and refreshes
// updated_at. ErrNotFound if the entity is not mirrored.
func (d *DB) Update(ctx context.Context, e *Entity) error {
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	res, err := d.sql.ExecContext(ctx,
		`UPDATE entities SET fields = ?, status = ?, remote_snapshot = ?, updated_at = ?
		 WHERE kind = ? AND remote_id = ?`,
		fields, string(e.Status), nullIfEmpty(string(e.RemoteSnapshot)),
		e.UpdatedAt.Format(timeFormat), string(e.Kind), e.RemoteID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the mirror record. The audit trail is kept: records outlive
// the entity row for diagnostics.
func (d *DB) Remove(ctx context.Context, kind Kind, remoteID string) error {
	res, err := d.sql.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND remote_id = ?`, string(kind), remoteID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit appends exactly one record and trims the trail back to
// AuditBound, dropping from the oldest end only.
func (d *DB) AppendAudit(ctx context.Context, kind Kind, remoteID, action string, payload json.RawMessage, success bool) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_records(kind, remote_id, action, payload, success, recorded_at) VALUES(?,?,?,?,?,?)`,
		string(kind), remoteID, action, nullIfEmpty(string(payload)), boolToInt(success),
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM audit_records WHERE kind = ? AND remote_id = ? AND id NOT IN (
		   SELECT id FROM audit_records WHERE kind = ? AND remote_id = ? ORDER BY id DESC LIMIT ?)`,
		string(kind), remoteID, string(kind), remoteID, AuditBound)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// ListAudit returns an entity's trail in append order, oldest first.
func (d *DB) ListAudit(ctx context.Context, kind Kind, remoteID string) ([]AuditRecord, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT action, payload, success, recorded_at FROM audit_records
		 WHERE kind = ? AND remote_id = ? ORDER BY id ASC`, string(kind), remoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var payload sql.NullString
		var successInt int
		var recordedAt string
		if err := rows.Scan(&r.Action, &payload, &successInt, &recordedAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			r.Payload = json.RawMessage(payload.String)
		}
		r.Success = successInt == 1
		r.Timestamp = parseTime(recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

type KindStats struct {
	Kind        Kind
	EntityCount int
	AuditCount  int
}

func (d *DB) GetStats(ctx context.Context) ([]KindStats, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT
			e.kind,
			COUNT(DISTINCT e.remote_id),
			(SELECT COUNT(*) FROM audit_records a WHERE a.kind = e.kind)
		FROM entities e
		GROUP BY e.kind
		ORDER BY e.kind;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []KindStats
	for rows.Next() {
		var s KindStats
		var kind string
		if err := rows.Scan(&kind, &s.EntityCount, &s.AuditCount); err != nil {
			return nil, err
		}
		s.Kind = Kind(kind)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var (
		e                    Entity
		kind, status         string
		parentNS, snapshotNS sql.NullString
		fields               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.LocalID, &kind, &e.RemoteID, &parentNS, &fields, &status, &snapshotNS, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	e.Status = Status(status)
	if parentNS.Valid {
		e.ParentRemoteID = parentNS.String
	}
	if snapshotNS.Valid {
		e.RemoteSnapshot = json.RawMessage(snapshotNS.String)
	}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, err
		}
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Legacy CURRENT_TIMESTAMP format
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func marshalFields(fields map[string]interface{}) (string, error) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
