package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/sandbox"
)

// formatted is the answer step's output: the user-facing text plus the
// model's own account of how the result supports it.
type formatted struct {
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning"`
}

// formatResult turns a successful query result into a short natural-language
// answer.
func (p *Pipeline) formatResult(ctx context.Context, question string, result *sandbox.Result) (*formatted, error) {
	userPrompt := fmt.Sprintf(
		"Вопрос пользователя: %s\n\nРезультат запроса:\n%s",
		question, result.String())
	return p.format(ctx, userPrompt)
}

// formatDirect produces a conversational reply when classification routed
// the question away from analysis but supplied no direct answer itself.
func (p *Pipeline) formatDirect(ctx context.Context, question string) (*formatted, error) {
	userPrompt := fmt.Sprintf(
		"Вопрос пользователя: %s\n\nДанных по этому вопросу нет, ответь коротко без анализа.",
		question)
	return p.format(ctx, userPrompt)
}

func (p *Pipeline) format(ctx context.Context, userPrompt string) (*formatted, error) {
	response, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.Answer, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("LLM completion failed: %w", err)
	}
	return parseFormatResponse(response)
}

// parseFormatResponse prefers the structured shape but falls back to
// treating the whole response as the answer, since a model that ignores the
// JSON instruction usually still produces usable text.
func parseFormatResponse(response string) (*formatted, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("empty answer from model")
	}

	if jsonStr := llm.ExtractJSON(response); jsonStr != "" {
		var f formatted
		if err := json.Unmarshal([]byte(jsonStr), &f); err == nil && strings.TrimSpace(f.Answer) != "" {
			f.Answer = strings.TrimSpace(f.Answer)
			return &f, nil
		}
	}

	return &formatted{Answer: response}, nil
}
