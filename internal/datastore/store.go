// Package datastore loads the users and orders datasets into an in-memory
// DuckDB database and hands out isolated per-session snapshots of them.
//
// The canonical tables are written once at startup and never mutated
// afterwards. Every session works on its own temporary copies, so nothing a
// generated query does can leak into another session or into the canonical
// data.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// TableUsers and TableOrders are the names generated queries see.
const (
	TableUsers  = "users"
	TableOrders = "orders"
)

const sampleRowsPerTable = 2

// Config holds the datastore configuration.
type Config struct {
	Logger    *slog.Logger
	UsersCSV  string
	OrdersCSV string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.UsersCSV == "" {
		return fmt.Errorf("users dataset path is required")
	}
	if cfg.OrdersCSV == "" {
		return fmt.Errorf("orders dataset path is required")
	}
	return nil
}

// Store owns the canonical in-memory tables.
type Store struct {
	log *slog.Logger
	db  *sql.DB
}

// Open creates an in-memory DuckDB database, loads both datasets with fully
// typed date columns, and then locks the database configuration so snapshot
// connections cannot reach the filesystem or network. Any missing or
// malformed dataset is a startup failure.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate datastore config: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{log: cfg.Logger, db: db}

	loadSQL := fmt.Sprintf(`CREATE TABLE %s AS
		SELECT user_id, region, registration_date, is_active, last_login_date
		FROM read_csv(%s, header = true, columns = {
			'user_id': 'BIGINT',
			'region': 'VARCHAR',
			'registration_date': 'DATE',
			'is_active': 'BOOLEAN',
			'last_login_date': 'DATE'
		})`, TableUsers, quoteLiteral(cfg.UsersCSV))
	if _, err := db.ExecContext(ctx, loadSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load users dataset from %s: %w", cfg.UsersCSV, err)
	}

	loadSQL = fmt.Sprintf(`CREATE TABLE %s AS
		SELECT order_id, user_id, order_date, order_amount, status
		FROM read_csv(%s, header = true, columns = {
			'order_id': 'BIGINT',
			'user_id': 'BIGINT',
			'order_date': 'DATE',
			'order_amount': 'DOUBLE',
			'status': 'VARCHAR'
		})`, TableOrders, quoteLiteral(cfg.OrdersCSV))
	if _, err := db.ExecContext(ctx, loadSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load orders dataset from %s: %w", cfg.OrdersCSV, err)
	}

	for _, table := range []string{TableUsers, TableOrders} {
		n, err := s.rowCount(ctx, table)
		if err != nil {
			db.Close()
			return nil, err
		}
		if n == 0 {
			db.Close()
			return nil, fmt.Errorf("dataset %s is empty", table)
		}
		cfg.Logger.Info("datastore: loaded table", "table", table, "rows", n)
	}

	// All file access happens above; from here on no connection may touch
	// the outside world or relax these settings again.
	if _, err := db.ExecContext(ctx, "SET enable_external_access = false"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to disable external access: %w", err)
	}
	if _, err := db.ExecContext(ctx, "SET lock_configuration = true"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lock configuration: %w", err)
	}

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) rowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n, nil
}

// Schema renders a deterministic description of both tables: column names,
// column types, row counts, and a fixed number of sample rows. The text is
// injected verbatim into model prompts as grounding context.
func (s *Store) Schema(ctx context.Context) (string, error) {
	var sb strings.Builder
	for _, table := range []string{TableUsers, TableOrders} {
		if err := s.describeTable(ctx, table, &sb); err != nil {
			return "", err
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}

func (s *Store) describeTable(ctx context.Context, table string, sb *strings.Builder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols = append(cols, name+" "+typ)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	n, err := s.rowCount(ctx, table)
	if err != nil {
		return err
	}

	fmt.Fprintf(sb, "table %s (%d rows)\n", table, n)
	fmt.Fprintf(sb, "columns: %s\n", strings.Join(cols, ", "))

	sample, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT %d", table, sampleRowsPerTable))
	if err != nil {
		return fmt.Errorf("failed to sample %s: %w", table, err)
	}
	defer sample.Close()

	names, err := sample.Columns()
	if err != nil {
		return fmt.Errorf("failed to get sample columns of %s: %w", table, err)
	}

	sb.WriteString("sample rows:\n")
	for sample.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := sample.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan sample row of %s: %w", table, err)
		}
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + "=" + renderValue(values[i])
		}
		fmt.Fprintf(sb, "  %s\n", strings.Join(parts, ", "))
	}
	return sample.Err()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format("2006-01-02")
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Snapshot is a per-session copy of both tables on a dedicated connection.
// Mutating a snapshot never affects the canonical tables or any other
// snapshot.
type Snapshot struct {
	conn *sql.Conn
}

// Snapshot copies both tables into connection-local temporary tables and
// returns a handle bound to that connection. Unqualified table names inside
// a session resolve to the temporary copies.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot connection: %w", err)
	}
	for _, table := range []string{TableUsers, TableOrders} {
		stmt := fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT * FROM main.%s", table, table)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to snapshot %s: %w", table, err)
		}
	}
	return &Snapshot{conn: conn}, nil
}

func (sn *Snapshot) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sn.conn.ExecContext(ctx, query, args...)
}

func (sn *Snapshot) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return sn.conn.QueryContext(ctx, query, args...)
}

func (sn *Snapshot) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return sn.conn.QueryRowContext(ctx, query, args...)
}

// Close drops the temporary copies and releases the connection. The drop is
// explicit because database/sql returns the connection to the pool, where a
// later snapshot would otherwise find stale temp tables.
func (sn *Snapshot) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, table := range []string{TableUsers, TableOrders} {
		_, _ = sn.conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS temp.%s", table))
	}
	return sn.conn.Close()
}

// quoteLiteral renders a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
