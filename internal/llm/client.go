// Package llm wraps the model API behind a narrow completion interface so
// the pipeline can be driven by a scripted client in tests.
package llm

import "context"

// Client is the single entry point to the language model. Implementations
// return the raw response text; callers own prompt construction and parsing.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
