package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
)

// regenerateResponse is the expected JSON response from the repair step.
type regenerateResponse struct {
	Reasoning string `json:"reasoning"`
	SQL       string `json:"sql"`
}

// regenerate asks the model to repair a failed query. The routing decision
// is not revisited: the question stays analytical, only the query changes.
func (p *Pipeline) regenerate(ctx context.Context, schema, question, failedSQL, failure string) (string, error) {
	systemPrompt := withSchema(p.cfg.Prompts.Regenerate, schema)
	userPrompt := fmt.Sprintf(
		"Вопрос пользователя: %s\n\nПредыдущий запрос:\n%s\n\nОшибка выполнения:\n%s",
		question, failedSQL, failure)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}

	sql, err := parseRegenerateResponse(response)
	if err != nil {
		return "", fmt.Errorf("failed to parse regenerate response: %w", err)
	}
	return sql, nil
}

func parseRegenerateResponse(response string) (string, error) {
	response = strings.TrimSpace(response)

	if jsonStr := llm.ExtractJSON(response); jsonStr != "" {
		var parsed regenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil && parsed.SQL != "" {
			return cleanSQL(parsed.SQL), nil
		}
	}

	// Fall back to extracting SQL from code blocks
	if sql := extractSQLFromCodeBlocks(response); sql != "" {
		return sql, nil
	}

	// Last resort: the whole response, if it reads as a query
	if looksLikeQuery(response) {
		return cleanSQL(response), nil
	}

	return "", fmt.Errorf("could not extract SQL from response")
}

// extractSQLFromCodeBlocks finds SQL in markdown code blocks.
func extractSQLFromCodeBlocks(response string) string {
	if start := strings.Index(response, "```sql"); start != -1 {
		start += 6 // len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return cleanSQL(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if looksLikeQuery(content) {
				return cleanSQL(content)
			}
		}
	}

	return ""
}

// looksLikeQuery checks whether text appears to be a read-only query.
func looksLikeQuery(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// cleanSQL normalizes SQL by trimming whitespace and trailing semicolons.
func cleanSQL(sql string) string {
	return strings.TrimSuffix(strings.TrimSpace(sql), ";")
}
