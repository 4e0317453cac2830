package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Runner = (*OpenAIRunner)(nil)

func newOpenAITestServer(t *testing.T, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompts = append(prompts, m.Content)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func TestOpenAIRunner_RunTurn(t *testing.T) {
	srv, prompts := newOpenAITestServer(t, `{
		"id":"c1","object":"chat.completion","model":"gpt-test",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"<promise>COMPLETE</promise>"}}],
		"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}
	}`)

	r, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	out, err := r.RunTurn(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "<promise>COMPLETE</promise>", out)
	assert.Equal(t, []string{"the prompt"}, *prompts)
}

func TestOpenAIRunner_NoChoices(t *testing.T) {
	srv, _ := newOpenAITestServer(t, `{"id":"c1","object":"chat.completion","model":"gpt-test","choices":[]}`)

	r, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	_, err = r.RunTurn(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAIRunner_RequiresKey(t *testing.T) {
	_, err := NewOpenAIRunner(OpenAIConfig{Model: "gpt-test"})
	assert.ErrorContains(t, err, "API key")
}

type chatRequest struct {
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
}

// scriptedChatServer replies with bodies in order and records each request.
func scriptedChatServer(t *testing.T, bodies ...string) (*httptest.Server, *[]chatRequest) {
	t.Helper()
	var reqs []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		reqs = append(reqs, req)

		body := bodies[len(bodies)-1]
		if len(reqs) <= len(bodies) {
			body = bodies[len(reqs)-1]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

const searchToolCall = `{
	"id":"c1","object":"chat.completion","model":"gpt-test",
	"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
		"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_progress","arguments":"{\"searchTerm\":\"migration\"}"}}]}}]
}`

func TestOpenAIRunner_AnswersToolCalls(t *testing.T) {
	f := newToolsFixture(t)
	f.write(t, f.files.Progress, "ran the migration\nwrote tests\n")

	srv, reqs := scriptedChatServer(t, searchToolCall, `{
		"id":"c2","object":"chat.completion","model":"gpt-test",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"<promise>COMPLETE</promise>"}}]
	}`)

	r, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Tools: f.tools})
	require.NoError(t, err)

	out, err := r.RunTurn(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "<promise>COMPLETE</promise>", out)

	require.Len(t, *reqs, 2)
	first := (*reqs)[0]
	require.Len(t, first.Tools, 4)

	second := (*reqs)[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, `"matchCount":1`)
	assert.Contains(t, last.Content, "ran the migration")
}

func TestOpenAIRunner_ToolRoundLimit(t *testing.T) {
	f := newToolsFixture(t)
	srv, reqs := scriptedChatServer(t, searchToolCall)

	r, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Tools: f.tools, MaxToolRounds: 2})
	require.NoError(t, err)

	_, err = r.RunTurn(context.Background(), "p")
	assert.ErrorContains(t, err, "tool calls exceeded 2 rounds")
	assert.Len(t, *reqs, 3)
}

func TestOpenAIRunner_WithoutToolsSendsNone(t *testing.T) {
	srv, reqs := scriptedChatServer(t, `{
		"id":"c1","object":"chat.completion","model":"gpt-test",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"done"}}]
	}`)

	r, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	_, err = r.RunTurn(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, *reqs, 1)
	assert.Empty(t, (*reqs)[0].Tools)
}
