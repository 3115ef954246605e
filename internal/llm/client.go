// Package llm defines the opaque text-in/text-out capability the
// orchestrator's roles call through, with token usage accounting
// surfaced on every call (spec.md §1).
package llm

import "context"

// Usage is the token accounting for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Request is one completion call. SystemPrompt and Prompt are kept
// separate so adapters that support a distinct system role (e.g. Gemini)
// don't need to fold them into one string.
type Request struct {
	SystemPrompt string
	Prompt       string
	JSONSchema   string // optional; if set, the adapter requests JSON output (GenAIClient sets the JSON response MIME type; the schema text is not sent)
}

// Response is the adapter's result for one call.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the capability every orchestrator role calls through. Callers
// are expected to wrap Complete with internal/cache using the key
// construction from spec.md §4.1; Client implementations do not cache.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// SchemaCapable reports whether this client can enforce JSONSchema
	// server-side rather than relying on prompt instructions alone.
	SchemaCapable() bool
}
