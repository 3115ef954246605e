package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/mgxlabs/orchestrator/internal/logging"
)

// GenAIClient is the production Client, backed by Google's Gemini API.
// Grounded on the teacher's internal/embedding/genai.go (NewClient
// construction, content-from-text helper, timed API calls with
// structured logging), generalized from EmbedContent to GenerateContent
// and from embedding dimensionality to token usage accounting.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient constructs a GenAIClient for model using apiKey.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	start := time.Now()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	latency := time.Since(start)
	log := logging.Get(logging.CategoryLLM)
	if err != nil {
		log.Error("genai client construction failed after %v: %v", latency, err)
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	log.Debug("genai client ready in %v (model=%s)", latency, model)

	return &GenAIClient{client: client, model: model}, nil
}

// SchemaCapable reports true: Gemini supports response_mime_type
// "application/json" without a full client-side schema compiler.
func (c *GenAIClient) SchemaCapable() bool { return true }

// Complete sends req to the configured model and returns its text plus
// token usage.
func (c *GenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	log := logging.Get(logging.CategoryLLM)
	timer := logging.StartTimer(logging.CategoryLLM, "GenAIClient.Complete")
	defer timer.Stop()

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.JSONSchema != "" {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	latency := time.Since(start)
	if err != nil {
		log.Error("GenAIClient.Complete: API call failed after %v: %v", latency, err)
		return Response{}, fmt.Errorf("genai: generate content: %w", err)
	}
	log.Debug("GenAIClient.Complete: response received in %v", latency)

	text := result.Text()
	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return Response{Text: text, Usage: usage}, nil
}
