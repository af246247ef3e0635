package pipeline

import (
	"fmt"
	"strings"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/pipeline/prompts"
)

// Prompts contains the pipeline prompts loaded from embedded files.
type Prompts struct {
	Classify   string // Classification plus first query generation
	Regenerate string // Query repair after an execution failure
	Answer     string // Natural-language answer formatting
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Classify, err = loadPrompt("CLASSIFY.md"); err != nil {
		return nil, fmt.Errorf("failed to load CLASSIFY: %w", err)
	}
	if p.Regenerate, err = loadPrompt("REGENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load REGENERATE: %w", err)
	}
	if p.Answer, err = loadPrompt("ANSWER.md"); err != nil {
		return nil, fmt.Errorf("failed to load ANSWER: %w", err)
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// withSchema injects the rendered dataset schema into a prompt template.
func withSchema(prompt, schema string) string {
	return strings.Replace(prompt, "{{SCHEMA}}", strings.TrimSpace(schema), 1)
}
