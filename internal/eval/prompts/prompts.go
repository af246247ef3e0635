// Package prompts embeds the evaluation rubric prompts.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
