// Package bot turns an incoming user message into a reply: it runs the
// analytics pipeline, optionally scores the answer, and maps every failure
// to a short user-facing message. Transport layers call Handle and send
// whatever it returns.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/eval"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/pipeline"
)

// User-facing messages. Every reply the bot sends is either a pipeline
// answer or one of these.
const (
	msgEmptyQuestion = "Пожалуйста, задайте вопрос для аналитики данных."
	msgInternalError = "Произошла ошибка при обработке запроса."
	msgRateLimited   = "Сервис сейчас перегружен. Пожалуйста, повторите вопрос через минуту."
)

// Pipeline answers one question.
type Pipeline interface {
	Answer(ctx context.Context, question string) (*pipeline.Session, error)
}

// Evaluator scores an answer. Nil disables scoring.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer, sql string) (*eval.Evaluation, error)
}

// Config holds the handler configuration.
type Config struct {
	Logger    *slog.Logger
	Pipeline  Pipeline
	Evaluator Evaluator
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	return nil
}

// Handler processes user messages and produces replies.
type Handler struct {
	log       *slog.Logger
	pipeline  Pipeline
	evaluator Evaluator
}

func New(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate handler config: %w", err)
	}
	return &Handler{
		log:       cfg.Logger,
		pipeline:  cfg.Pipeline,
		evaluator: cfg.Evaluator,
	}, nil
}

// Handle produces the reply for one message. It never returns an empty
// string and never panics: any failure inside the pipeline becomes a short
// apology so the transport always has something to send.
func (h *Handler) Handle(ctx context.Context, user, text string) (reply string) {
	start := time.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("bot: panic while handling message", "user", user, "panic", r)
			status = "panic"
			reply = msgInternalError
		}
		MessagesProcessedTotal.WithLabelValues(status).Inc()
		MessageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	question := strings.TrimSpace(text)
	if question == "" {
		status = "empty"
		return msgEmptyQuestion
	}

	h.log.Info("bot: handling message", "user", user, "question", question)

	session, err := h.pipeline.Answer(ctx, question)
	if err != nil {
		status = errorStatus(err)
		h.log.Error("bot: pipeline failed", "user", user, "status", status, "error", err)
		if status == "rate_limited" {
			return msgRateLimited
		}
		return msgInternalError
	}

	reply = session.Answer
	if h.evaluator != nil && session.NeedsAnalysis && !session.Exhausted {
		ev, err := h.evaluator.Evaluate(ctx, question, session.Answer, session.SQL)
		if err != nil {
			h.log.Warn("bot: evaluation failed", "user", user, "error", err)
			EvaluationFailuresTotal.Inc()
		} else {
			reply = fmt.Sprintf("%s\n\n%s", reply, ev.Line())
		}
	}

	h.log.Info("bot: reply ready",
		"user", user, "retries", session.Retries, "exhausted", session.Exhausted)
	return reply
}

// errorStatus maps a pipeline error to a metrics label.
func errorStatus(err error) string {
	if llm.IsRateLimited(err) {
		return "rate_limited"
	}
	var genErr *pipeline.GenerationError
	if errors.As(err, &genErr) {
		return "generation_" + genErr.Stage
	}
	return "internal"
}
