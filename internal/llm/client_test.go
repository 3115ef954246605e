package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGenAIClient(context.Background(), "", "gemini-2.0-flash")
	require.Error(t, err)
}

// fakeClient is a deterministic in-process Client for tests of callers
// that depend on llm.Client, without hitting the network.
type fakeClient struct {
	schemaCapable bool
	response      Response
	err           error
	lastRequest   Request
}

func (f *fakeClient) SchemaCapable() bool { return f.schemaCapable }

func (f *fakeClient) Complete(_ context.Context, req Request) (Response, error) {
	f.lastRequest = req
	if f.err != nil {
		return Response{}, f.err
	}
	return f.response, nil
}

func TestFakeClient_SatisfiesClientInterface(t *testing.T) {
	var c Client = &fakeClient{response: Response{Text: "ok", Usage: Usage{PromptTokens: 3, CompletionTokens: 5}}}
	resp, err := c.Complete(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 3, resp.Usage.PromptTokens)
}
