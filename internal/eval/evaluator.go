// Package eval scores an answer against a set of model-judged rubrics and
// produces the quality line appended to bot replies.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/eval/prompts"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
)

// ScoreLabel prefixes the quality line appended to an answer.
const ScoreLabel = "Оценка качества ответа"

// LLMClient is the interface for the judge model.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RubricScore is one rubric's verdict.
type RubricScore struct {
	Name      string
	Score     int
	Reasoning string
}

// Evaluation is the aggregate verdict for one answer.
type Evaluation struct {
	Overall int // Rounded mean of the rubric scores, 1..5
	Rubrics []RubricScore
}

// Line renders the quality suffix appended to the answer text.
func (e *Evaluation) Line() string {
	return fmt.Sprintf("%s:\n%d из 5", ScoreLabel, e.Overall)
}

// Config holds the evaluator configuration.
type Config struct {
	Logger *slog.Logger
	LLM    LLMClient
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.LLM == nil {
		return fmt.Errorf("LLM client is required")
	}
	return nil
}

// Evaluator judges answers with one model call per rubric.
type Evaluator struct {
	log     *slog.Logger
	llm     LLMClient
	rubrics []rubric
}

type rubric struct {
	name      string
	prompt    string
	needsCode bool
}

// New loads the rubric prompts and creates an evaluator.
func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate evaluator config: %w", err)
	}

	load := func(name string) (string, error) {
		data, err := prompts.PromptsFS.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	e := &Evaluator{log: cfg.Logger, llm: cfg.LLM}
	for _, r := range []struct {
		name      string
		file      string
		needsCode bool
	}{
		{"correctness", "CORRECTNESS.md", false},
		{"conciseness", "CONCISENESS.md", false},
		{"code", "CODE.md", true},
	} {
		prompt, err := load(r.file)
		if err != nil {
			return nil, err
		}
		e.rubrics = append(e.rubrics, rubric{name: r.name, prompt: prompt, needsCode: r.needsCode})
	}
	return e, nil
}

// Evaluate scores an answer. The code rubric is skipped when the answer was
// produced without a query. A rubric whose judge call or parse fails is
// skipped too; the overall score averages whatever rubrics succeeded.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer, sql string) (*Evaluation, error) {
	ev := &Evaluation{}
	for _, r := range e.rubrics {
		if r.needsCode && sql == "" {
			continue
		}
		score, err := e.judge(ctx, r, question, answer, sql)
		if err != nil {
			e.log.Warn("eval: rubric failed", "rubric", r.name, "error", err)
			continue
		}
		ScoreObserved.WithLabelValues(r.name).Observe(float64(score.Score))
		ev.Rubrics = append(ev.Rubrics, score)
	}
	if len(ev.Rubrics) == 0 {
		return nil, fmt.Errorf("no rubric produced a score")
	}

	sum := 0
	for _, r := range ev.Rubrics {
		sum += r.Score
	}
	ev.Overall = int(math.Round(float64(sum) / float64(len(ev.Rubrics))))
	return ev, nil
}

type judgeResponse struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

func (e *Evaluator) judge(ctx context.Context, r rubric, question, answer, sql string) (RubricScore, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Вопрос пользователя: %s\n\nОтвет ассистента:\n%s\n", question, answer)
	if r.needsCode {
		fmt.Fprintf(&sb, "\nSQL-запрос:\n%s\n", sql)
	}

	response, err := e.llm.Complete(ctx, r.prompt, sb.String())
	if err != nil {
		return RubricScore{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return RubricScore{}, fmt.Errorf("no JSON found in response")
	}
	var parsed judgeResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return RubricScore{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if parsed.Score < 1 || parsed.Score > 5 {
		return RubricScore{}, fmt.Errorf("score %d out of range", parsed.Score)
	}

	return RubricScore{Name: r.name, Score: parsed.Score, Reasoning: parsed.Reasoning}, nil
}
