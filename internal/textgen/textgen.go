// Package textgen defines the Text Generator collaborator contract: a
// capability taking (system_prompt, user_prompt, variables) and returning a
// single text completion (spec §6). The core depends only on this
// string-in/string-out contract, never on a specific provider SDK.
package textgen

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces one completion from a rendered prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, variables map[string]string) (string, error)
}

// Render interpolates {{key}} placeholders in template with values from
// variables, per spec §9's "immutable template values with named slots;
// render via a small safe interpolator rather than language-level string
// formatting."
func Render(template string, variables map[string]string) string {
	out := template
	for k, v := range variables {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// StubGenerator is a deterministic local stand-in for a real LLM client; no
// model-provider SDK appears anywhere in the example pack, so the core ships
// with this fallback and expects a real Generator to be wired at startup
// when one is configured.
type StubGenerator struct{}

// Generate returns a templated, context-grounded acknowledgement rather than
// a model completion. It never fabricates information beyond what variables carries.
func (StubGenerator) Generate(_ context.Context, _, userPrompt string, variables map[string]string) (string, error) {
	docContext, hasContext := variables["context"]
	if !hasContext || strings.TrimSpace(docContext) == "" || strings.Contains(docContext, "No relevant documents found") {
		return "I don't have information about that. Please contact the relevant department for assistance.", nil
	}

	var b strings.Builder
	b.WriteString("Based on the available policy documents:\n\n")
	b.WriteString(docContext)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "(response generated for: %s)", strings.TrimSpace(userPrompt))
	return b.String(), nil
}
