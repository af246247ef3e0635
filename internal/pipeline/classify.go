package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
)

// ClassifyResult is the parsed outcome of the classification step: the
// routing decision plus either the first query or a direct answer.
type ClassifyResult struct {
	NeedsAnalysis bool   `json:"needs_analysis"`
	Reasoning     string `json:"reasoning"`
	SQL           string `json:"sql,omitempty"`
	DirectAnswer  string `json:"direct_answer,omitempty"`
}

// classify asks the model whether the question needs data analysis and, when
// it does, for the query that answers it.
func (p *Pipeline) classify(ctx context.Context, schema, question string) (*ClassifyResult, error) {
	systemPrompt := withSchema(p.cfg.Prompts.Classify, schema)
	userPrompt := fmt.Sprintf("Вопрос пользователя: %s", question)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("LLM completion failed: %w", err)
	}

	result, err := parseClassifyResponse(response)
	if err != nil {
		// An unparseable classification routes to analysis: an empty
		// query fails execution and the repair loop gets a real chance
		// to produce one, instead of the user getting silence.
		p.log.Warn("pipeline: classify parse failed, defaulting to analysis",
			"error", err, "responsePreview", llm.TruncateString(response, 500))
		return &ClassifyResult{
			NeedsAnalysis: true,
			Reasoning:     "classification response was unparseable",
		}, nil
	}
	return result, nil
}

func parseClassifyResponse(response string) (*ClassifyResult, error) {
	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var result ClassifyResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	// A conversational classification may omit direct_answer; the answer
	// step fills it in then.
	return &result, nil
}
