package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTableName is used when no table name is given.
const DefaultTableName = "saga_instances"

type dialect struct {
	name        string
	boolType    string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{
		name:        "postgres",
		boolType:    "BOOLEAN",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	sqliteDialect = dialect{
		name:        "sqlite",
		boolType:    "INTEGER",
		placeholder: func(int) string { return "?" },
	}
)

// SQLStorage implements Storage on database/sql. Timestamps are stored as
// Unix milliseconds so the same schema works for PostgreSQL and SQLite.
type SQLStorage struct {
	db        *sql.DB
	tableName string
	dialect   dialect
}

// NewPostgresStorage creates a SQLStorage for a PostgreSQL database opened
// with the lib/pq driver. tableName defaults to DefaultTableName if empty.
func NewPostgresStorage(db *sql.DB, tableName string) (*SQLStorage, error) {
	return newSQLStorage(db, tableName, postgresDialect)
}

// NewSQLiteStorage creates a SQLStorage for a SQLite database opened with
// the modernc.org/sqlite driver.
func NewSQLiteStorage(db *sql.DB, tableName string) (*SQLStorage, error) {
	return newSQLStorage(db, tableName, sqliteDialect)
}

func newSQLStorage(db *sql.DB, tableName string, d dialect) (*SQLStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if tableName == "" {
		tableName = DefaultTableName
	}
	if !validTableName.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name: %s", tableName)
	}
	return &SQLStorage{db: db, tableName: tableName, dialect: d}, nil
}

// IsProductionSafe returns true for PostgreSQL. SQLite is meant for tooling
// and single-process deployments.
func (s *SQLStorage) IsProductionSafe() bool {
	return s.dialect.name == postgresDialect.name
}

// Dialect returns the SQL dialect name.
func (s *SQLStorage) Dialect() string {
	return s.dialect.name
}

// Migrate creates the instance table if it does not exist.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			state TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			archived %s NOT NULL DEFAULT FALSE,
			terminal TEXT NOT NULL DEFAULT '',
			applied TEXT NOT NULL DEFAULT '[]',
			version BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, s.tableName, s.dialect.boolType)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Create persists a new instance.
func (s *SQLStorage) Create(ctx context.Context, inst *Instance) error {
	appliedJSON, err := json.Marshal(nonNilApplied(inst.Applied))
	if err != nil {
		return fmt.Errorf("marshal applied: %w", err)
	}

	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = inst.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Check if row exists
	var exists bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = %s)`, s.tableName, s.ph(1))
	if err := tx.QueryRowContext(ctx, checkQuery, inst.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return NewInstanceExistsError(inst.ID)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, workflow, state, status, archived, terminal, applied, version, created_at, updated_at)
		VALUES (%s)
	`, s.tableName, s.phList(1, 10))
	if _, err := tx.ExecContext(ctx, insertQuery,
		inst.ID,
		string(inst.Workflow),
		string(inst.State),
		string(inst.Status),
		inst.Archived,
		inst.Terminal,
		string(appliedJSON),
		inst.Version,
		inst.CreatedAt.UnixMilli(),
		inst.UpdatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	return tx.Commit()
}

// Load retrieves an instance.
func (s *SQLStorage) Load(ctx context.Context, id string) (*Instance, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow, state, status, archived, terminal, applied, version, created_at, updated_at
		FROM %s WHERE id = %s
	`, s.tableName, s.ph(1))

	inst, err := scanInstance(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return inst, nil
}

// Save writes inst under optimistic version control.
func (s *SQLStorage) Save(ctx context.Context, inst *Instance) error {
	appliedJSON, err := json.Marshal(nonNilApplied(inst.Applied))
	if err != nil {
		return fmt.Errorf("marshal applied: %w", err)
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now()
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET state = %s, status = %s, archived = %s, terminal = %s, applied = %s,
			version = version + 1, updated_at = %s
		WHERE id = %s AND version = %s
	`, s.tableName, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8))

	result, err := s.db.ExecContext(ctx, query,
		string(inst.State),
		string(inst.Status),
		inst.Archived,
		inst.Terminal,
		string(appliedJSON),
		inst.UpdatedAt.UnixMilli(),
		inst.ID,
		inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewConcurrentUpdateError(inst.ID, inst.Version)
	}

	inst.Version++
	return nil
}

// Query retrieves instances matching the filter.
func (s *SQLStorage) Query(ctx context.Context, filter InstanceFilter) (*InstanceQueryResult, error) {
	// Build query
	query := fmt.Sprintf(`SELECT id, workflow, state, status, archived, terminal, applied, version, created_at, updated_at FROM %s WHERE 1=1`, s.tableName)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE 1=1`, s.tableName)
	args := []any{}
	argIndex := 1

	in := func(column string, values []string) {
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = s.ph(argIndex)
			args = append(args, v)
			argIndex++
		}
		clause := fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(placeholders, ", "))
		query += clause
		countQuery += clause
	}
	cmp := func(clause string, value time.Time) {
		c := fmt.Sprintf(clause, s.ph(argIndex))
		query += c
		countQuery += c
		args = append(args, value.UnixMilli())
		argIndex++
	}

	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			values[i] = string(st)
		}
		in("status", values)
	}
	if len(filter.Workflow) > 0 {
		values := make([]string, len(filter.Workflow))
		for i, wf := range filter.Workflow {
			values[i] = string(wf)
		}
		in("workflow", values)
	}
	if filter.CreatedAfter != nil {
		cmp(" AND created_at >= %s", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		cmp(" AND created_at <= %s", *filter.CreatedBefore)
	}
	if filter.UpdatedBefore != nil {
		cmp(" AND updated_at <= %s", *filter.UpdatedBefore)
	}

	// Get total count
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY created_at DESC, id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		instances = append(instances, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &InstanceQueryResult{
		Instances: instances,
		Total:     total,
	}, nil
}

// CountByStatus counts instances by status.
func (s *SQLStorage) CountByStatus(ctx context.Context, statuses ...InstanceStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = s.ph(i + 1)
		args[i] = string(st)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status IN (%s)`, s.tableName, strings.Join(placeholders, ", "))

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

func (s *SQLStorage) ph(n int) string {
	return s.dialect.placeholder(n)
}

func (s *SQLStorage) phList(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		parts = append(parts, s.ph(i))
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*Instance, error) {
	var (
		inst        Instance
		workflow    string
		state       string
		status      string
		appliedJSON string
		createdMs   int64
		updatedMs   int64
	)
	if err := row.Scan(
		&inst.ID,
		&workflow,
		&state,
		&status,
		&inst.Archived,
		&inst.Terminal,
		&appliedJSON,
		&inst.Version,
		&createdMs,
		&updatedMs,
	); err != nil {
		return nil, err
	}

	inst.Workflow = WorkflowType(workflow)
	inst.State = json.RawMessage(state)
	inst.Status = InstanceStatus(status)
	inst.CreatedAt = time.UnixMilli(createdMs)
	inst.UpdatedAt = time.UnixMilli(updatedMs)
	if err := json.Unmarshal([]byte(appliedJSON), &inst.Applied); err != nil {
		return nil, fmt.Errorf("unmarshal applied: %w", err)
	}
	return &inst, nil
}

func nonNilApplied(applied []string) []string {
	if applied == nil {
		return []string{}
	}
	return applied
}

// Ensure SQLStorage implements Storage.
var _ Storage = (*SQLStorage)(nil)
