// Package pipeline turns a natural-language question into an answer by
// driving a small state machine: classify the question (generating a query
// when one is needed), execute the query in the sandbox, repair and re-run
// it on failure up to a fixed ceiling, then format the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/sandbox"
)

// DefaultMaxAttempts is the execution ceiling for one question. The first
// run counts as an attempt, so a question gets at most this many sandbox
// executions before the pipeline gives up.
const DefaultMaxAttempts = 3

// LLMClient is the interface for interacting with the model.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// QueryExecutor runs a generated query in the sandbox.
type QueryExecutor interface {
	Execute(ctx context.Context, program string) (*sandbox.Result, error)
}

// SchemaFetcher renders the dataset schema for prompt grounding.
type SchemaFetcher interface {
	Schema(ctx context.Context) (string, error)
}

// Config holds the configuration for the pipeline.
type Config struct {
	Logger      *slog.Logger
	LLM         LLMClient
	Executor    QueryExecutor
	Schema      SchemaFetcher
	Prompts     *Prompts
	MaxAttempts int // Execution ceiling per question (default 3)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.LLM == nil {
		return fmt.Errorf("LLM client is required")
	}
	if cfg.Executor == nil {
		return fmt.Errorf("query executor is required")
	}
	if cfg.Schema == nil {
		return fmt.Errorf("schema fetcher is required")
	}
	if cfg.Prompts == nil {
		return fmt.Errorf("prompts are required")
	}
	return nil
}

// GenerationError reports a model call or response-parsing failure. Unlike
// execution failures it is not retried: there is no error text a repaired
// query could fix.
type GenerationError struct {
	Stage string // "classify", "regenerate", or "format"
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Session is the full trace of answering one question. The bot only needs
// Answer; everything else exists for evaluation, logging, and tests.
type Session struct {
	Question string

	NeedsAnalysis bool
	Reasoning     string

	SQL       string
	Result    *sandbox.Result
	Retries   int    // Failed executions counted against the ceiling
	LastError string // Error text of the most recent failed execution
	Exhausted bool   // True when the attempt ceiling was hit without success

	Answer          string
	AnswerReasoning string
}

// Pipeline orchestrates classification, sandboxed execution, and answer
// formatting.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

// New creates a new Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}, nil
}

// Answer runs the full state machine for one question. The returned Session
// always carries a user-facing Answer when err is nil; a non-nil error means
// a model call failed and no answer could be produced at all.
func (p *Pipeline) Answer(ctx context.Context, question string) (*Session, error) {
	s := &Session{Question: question}

	schema, err := p.cfg.Schema.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema: %w", err)
	}

	classified, err := p.classify(ctx, schema, question)
	if err != nil {
		return nil, &GenerationError{Stage: "classify", Err: err}
	}
	s.NeedsAnalysis = classified.NeedsAnalysis
	s.Reasoning = classified.Reasoning

	// Routing is decided exactly once. A question classified as
	// conversational is answered directly and never touches the sandbox;
	// a question classified as analytical stays analytical through every
	// retry.
	if !classified.NeedsAnalysis {
		s.Answer = classified.DirectAnswer
		if s.Answer == "" {
			f, err := p.formatDirect(ctx, question)
			if err != nil {
				return nil, &GenerationError{Stage: "format", Err: err}
			}
			s.Answer = f.Answer
			s.AnswerReasoning = f.Reasoning
		}
		p.log.Info("pipeline: answered without analysis", "question", question)
		QuestionsTotal.WithLabelValues("direct").Inc()
		return s, nil
	}

	s.SQL = classified.SQL
	for attempt := 1; ; attempt++ {
		result, execErr := p.cfg.Executor.Execute(ctx, s.SQL)
		if execErr == nil {
			s.Result = result
			p.log.Info("pipeline: query succeeded",
				"question", question, "attempt", attempt, "kind", result.Kind)
			break
		}

		s.Retries++
		s.LastError = executionErrorText(execErr)
		p.log.Info("pipeline: query failed",
			"question", question, "attempt", attempt, "error", s.LastError)

		if attempt >= p.cfg.MaxAttempts {
			s.Exhausted = true
			s.Answer = fmt.Sprintf("Ошибка при выполнении запроса: %s", s.LastError)
			p.log.Warn("pipeline: attempts exhausted", "question", question, "attempts", attempt)
			QuestionsTotal.WithLabelValues("exhausted").Inc()
			RetriesTotal.Add(float64(s.Retries))
			return s, nil
		}

		repaired, err := p.regenerate(ctx, schema, question, s.SQL, s.LastError)
		if err != nil {
			return nil, &GenerationError{Stage: "regenerate", Err: err}
		}
		s.SQL = repaired
	}

	f, err := p.formatResult(ctx, question, s.Result)
	if err != nil {
		return nil, &GenerationError{Stage: "format", Err: err}
	}
	s.Answer = f.Answer
	s.AnswerReasoning = f.Reasoning
	QuestionsTotal.WithLabelValues("analysis").Inc()
	RetriesTotal.Add(float64(s.Retries))
	return s, nil
}

// executionErrorText renders a sandbox failure the way it is shown to both
// the repair prompt and, on exhaustion, the user.
func executionErrorText(err error) string {
	var secErr *sandbox.SecurityError
	if errors.As(err, &secErr) {
		return secErr.Error()
	}
	if errors.Is(err, sandbox.ErrNoResult) {
		return sandbox.ErrNoResult.Error()
	}
	var execErr *sandbox.ExecError
	if errors.As(err, &execErr) {
		return execErr.Err.Error()
	}
	return err.Error()
}
