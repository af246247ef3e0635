// Package sandbox executes generated analysis queries against per-session
// dataset snapshots under a restricted surface: one read-only SELECT or WITH
// statement, checked against a token denylist before it runs.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/datastore"
)

const defaultQueryTimeout = 30 * time.Second

// denylist holds tokens that must never appear in a generated query,
// matched case-insensitively as substrings. This is a textual filter, not a
// parser; statements that get past it still run on an isolated snapshot of
// a database with external access disabled.
var denylist = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"alter",
	"create",
	"truncate",
	"attach",
	"detach",
	"install",
	"load",
	"copy",
	"export",
	"pragma",
	"vacuum",
	"checkpoint",
	"grant",
	"call",
	"read_",
	"glob",
	"getenv",
}

// Store provides fresh per-execution snapshots of the datasets.
type Store interface {
	Snapshot(ctx context.Context) (*datastore.Snapshot, error)
}

// Config holds the executor configuration.
type Config struct {
	Logger *slog.Logger
	Store  Store
	// QueryTimeout bounds a single query so a pathological generated
	// statement cannot hold a snapshot connection indefinitely.
	QueryTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	return nil
}

// Executor runs validated queries on dataset snapshots.
type Executor struct {
	log     *slog.Logger
	store   Store
	timeout time.Duration
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate executor config: %w", err)
	}
	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	return &Executor{
		log:     cfg.Logger,
		store:   cfg.Store,
		timeout: timeout,
	}, nil
}

// Validate rejects programs that are not a single read-only statement or
// that contain a denylisted token. It returns a *SecurityError describing
// the first violation found.
func Validate(program string) error {
	program = strings.TrimSpace(program)
	program = strings.TrimSuffix(program, ";")

	if strings.Contains(program, ";") {
		return &SecurityError{Reason: "multiple statements are not allowed"}
	}

	upper := strings.ToUpper(program)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return &SecurityError{Reason: "only SELECT and WITH statements are allowed"}
	}

	lower := strings.ToLower(program)
	for _, token := range denylist {
		if strings.Contains(lower, token) {
			return &SecurityError{
				Token:  token,
				Reason: fmt.Sprintf("denylisted token %q", token),
			}
		}
	}
	return nil
}

// Execute validates the program, runs it on a fresh snapshot of both tables,
// and returns the normalized result. Failures come back as typed errors
// (*SecurityError, *ExecError, ErrNoResult); they are data for the caller's
// retry policy, never process failures.
func (e *Executor) Execute(ctx context.Context, program string) (*Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, program)
	duration := time.Since(start)

	status := "success"
	switch {
	case err == nil:
	case isSecurityError(err):
		status = "security_violation"
		e.log.Warn("sandbox: query rejected", "error", err, "program", program)
	case errors.Is(err, ErrNoResult):
		status = "no_result"
	default:
		status = "execution_error"
		e.log.Debug("sandbox: query failed", "error", err)
	}
	QueriesTotal.WithLabelValues(status).Inc()
	QueryDuration.Observe(duration.Seconds())
	return res, err
}

func (e *Executor) execute(ctx context.Context, program string) (*Result, error) {
	program = strings.TrimSuffix(strings.TrimSpace(program), ";")
	if program == "" {
		return nil, ErrNoResult
	}
	if err := Validate(program); err != nil {
		return nil, err
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot datasets: %w", err)
	}
	defer snap.Close()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := snap.QueryContext(ctx, program)
	if err != nil {
		return nil, &ExecError{Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &ExecError{Err: err}
	}
	if len(columns) == 0 {
		return nil, ErrNoResult
	}

	var resultRows []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecError{Err: err}
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Err: err}
	}

	return normalize(columns, resultRows), nil
}

func isSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}
