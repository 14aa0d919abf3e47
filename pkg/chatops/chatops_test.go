package chatops_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/mocks/mockbackend"
	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/chatops"
	"github.com/effective-security/mcp-ollama/pkg/retry"
	"github.com/effective-security/mcp-ollama/pkg/toolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newOps(t *testing.T, retries int, defaultModel string) (*chatops.Ops, *mockbackend.MockClient) {
	ctrl := gomock.NewController(t)
	client := mockbackend.NewMockClient(ctrl)
	inv := retry.NewInvoker(retry.Policy{MaxRetries: retries, BaseDelay: time.Millisecond})
	return chatops.New(client, inv, defaultModel), client
}

func streamOf(chunks ...string) func(context.Context, *backend.ChatRequest, backend.ChunkFunc) error {
	return func(_ context.Context, _ *backend.ChatRequest, fn backend.ChunkFunc) error {
		for _, c := range chunks {
			if err := fn(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func Test_BuildMessages(t *testing.T) {
	history := []backend.ChatMessage{
		{Role: backend.RoleUser, Content: "hi"},
		{Role: backend.RoleAssistant, Content: "hello"},
	}

	msgs := chatops.BuildMessages("  be brief ", history, "how are you?")
	assert.Equal(t, []backend.ChatMessage{
		{Role: backend.RoleSystem, Content: "be brief"},
		{Role: backend.RoleUser, Content: "hi"},
		{Role: backend.RoleAssistant, Content: "hello"},
		{Role: backend.RoleUser, Content: "how are you?"},
	}, msgs)

	msgs = chatops.BuildMessages("   ", nil, "ping")
	assert.Equal(t, []backend.ChatMessage{{Role: backend.RoleUser, Content: "ping"}}, msgs)

	msgs = chatops.BuildMessages(strings.Repeat("s", 6000), nil, "ping")
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 5000)
}

func Test_Chat(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		ops, _ := newOps(t, 3, "")

		_, err := ops.Chat(ctx, chatops.Request{Model: " ", Message: "hi"})
		assert.Equal(t, "Error: Invalid model name provided.", toolerr.Text(err))

		_, err = ops.Chat(ctx, chatops.Request{Model: "llama3", Message: " \n\t "})
		assert.Equal(t, "Error: Empty message provided.", toolerr.Text(err))
	})

	t.Run("messages", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error) {
				assert.Equal(t, "llama3", req.Model)
				assert.Equal(t, []backend.ChatMessage{
					{Role: backend.RoleSystem, Content: "be brief"},
					{Role: "user", Content: "previous"},
					{Role: backend.RoleUser, Content: "hi"},
				}, req.Messages)
				return &backend.ChatResponse{Message: backend.ChatMessage{Role: backend.RoleAssistant, Content: "Hello"}}, nil
			})

		res, err := ops.Chat(ctx, chatops.Request{
			Model:        "llama3",
			Message:      "  hi  ",
			SystemPrompt: "be brief",
			Context:      []backend.ChatMessage{{Role: "user", Content: "previous"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello", res)
	})

	t.Run("message_truncated", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error) {
				require.Len(t, req.Messages, 1)
				assert.Len(t, []rune(req.Messages[0].Content), 10000)
				return &backend.ChatResponse{}, nil
			})

		res, err := ops.Chat(ctx, chatops.Request{Model: "llama3", Message: strings.Repeat("ü", 12000)})
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("no_response", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := ops.Chat(ctx, chatops.Request{Model: "llama3", Message: "hi"})
		assert.Equal(t, "Error: No response received from model", toolerr.Text(err))
		assert.Equal(t, toolerr.MalformedResponse, toolerr.KindOf(err))
	})

	t.Run("failed", func(t *testing.T) {
		ops, client := newOps(t, 2, "")
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, errors.New("attempt 1")).Times(1)
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, errors.New("attempt 2")).Times(1)
		client.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, errors.New("attempt 3")).Times(1)

		_, err := ops.Chat(ctx, chatops.Request{Model: "llama3", Message: "hi"})
		assert.Equal(t, "Error communicating with model: attempt 3", toolerr.Text(err))
	})
}

func Test_ChatStream(t *testing.T) {
	ctx := context.Background()
	req := chatops.Request{Model: "llama3", Message: "hi"}

	t.Run("collect", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamOf("Hel", "", "lo", ""))

		seq := ops.ChatStream(ctx, req)
		assert.Equal(t, "Hello", chatops.Collect(seq))
		// single use
		assert.Empty(t, chatops.Collect(seq))
	})

	t.Run("fragments", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamOf("a", "b", "c"))

		var got []string
		for c := range ops.ChatStream(ctx, req) {
			got = append(got, c)
		}
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("validation", func(t *testing.T) {
		ops, _ := newOps(t, 0, "")

		var got []string
		for c := range ops.ChatStream(ctx, chatops.Request{Model: "llama3"}) {
			got = append(got, c)
		}
		assert.Equal(t, []string{"Error: Empty message provided."}, got)

		got = nil
		for c := range ops.ChatStream(ctx, chatops.Request{Message: "hi"}) {
			got = append(got, c)
		}
		assert.Equal(t, []string{"Error: Invalid model name provided."}, got)
	})

	t.Run("start_retried", func(t *testing.T) {
		ops, client := newOps(t, 2, "")
		gomock.InOrder(
			client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused")),
			client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamOf("Hel", "lo")),
		)
		assert.Equal(t, "Hello", chatops.Collect(ops.ChatStream(ctx, req)))
	})

	t.Run("start_failed", func(t *testing.T) {
		ops, client := newOps(t, 1, "")
		client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused")).Times(2)

		var got []string
		for c := range ops.ChatStream(ctx, req) {
			got = append(got, c)
		}
		assert.Equal(t, []string{"Error communicating with model: connection refused"}, got)
	})

	t.Run("mid_stream_failure", func(t *testing.T) {
		ops, client := newOps(t, 3, "")
		client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *backend.ChatRequest, fn backend.ChunkFunc) error {
				_ = fn("Hel")
				return errors.New("unexpected EOF")
			}).Times(1)

		var got []string
		for c := range ops.ChatStream(ctx, req) {
			got = append(got, c)
		}
		assert.Equal(t, []string{"Hel", "Error communicating with model: unexpected EOF"}, got)
	})

	t.Run("consumer_stops", func(t *testing.T) {
		ops, client := newOps(t, 3, "")
		var sent []string
		var streamErr error
		client.EXPECT().ChatStream(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ *backend.ChatRequest, fn backend.ChunkFunc) error {
				for _, c := range []string{"a", "b", "c"} {
					if err := fn(c); err != nil {
						streamErr = err
						return err
					}
					sent = append(sent, c)
				}
				return nil
			}).Times(1)

		for c := range ops.ChatStream(ctx, req) {
			assert.Equal(t, "a", c)
			break
		}
		assert.Empty(t, sent)
		assert.Error(t, streamErr)
	})
}

func Test_ChatWithDefaultModel(t *testing.T) {
	ctx := context.Background()

	ops, _ := newOps(t, 3, "")
	assert.Empty(t, ops.DefaultModel())
	_, err := ops.ChatWithDefaultModel(ctx, chatops.Request{Message: "hi"})
	assert.Equal(t, "Error: No default model configured. Set DEFAULT_MODEL environment variable.", toolerr.Text(err))
	assert.Equal(t, toolerr.Configuration, toolerr.KindOf(err))

	ops, client := newOps(t, 0, "mistral")
	assert.Equal(t, "mistral", ops.DefaultModel())
	client.EXPECT().Chat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error) {
			assert.Equal(t, "mistral", req.Model)
			return &backend.ChatResponse{Message: backend.ChatMessage{Content: "pong"}}, nil
		})
	res, err := ops.ChatWithDefaultModel(ctx, chatops.Request{Model: "ignored", Message: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", res)
}

func Test_GenerateCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		ops, _ := newOps(t, 0, "")
		_, err := ops.GenerateCompletion(ctx, chatops.CompletionRequest{Prompt: "x"})
		assert.Equal(t, "Error: Invalid model name provided.", toolerr.Text(err))

		_, err = ops.GenerateCompletion(ctx, chatops.CompletionRequest{Model: "codellama", Prompt: "  "})
		assert.Equal(t, "Error: Empty prompt provided.", toolerr.Text(err))
	})

	t.Run("request", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().Generate(gomock.Any(), &backend.GenerateRequest{
			Model:  "codellama",
			Prompt: "You write Go\n\nfunc add(a, b int) int {",
			Suffix: "}",
		}).Return(&backend.GenerateResponse{Response: "return a + b"}, nil)

		res, err := ops.GenerateCompletion(ctx, chatops.CompletionRequest{
			Model:        "codellama",
			Prompt:       " func add(a, b int) int {",
			Suffix:       " } ",
			SystemPrompt: "You write Go",
		})
		require.NoError(t, err)
		assert.Equal(t, "return a + b", res)
	})

	t.Run("suffix_truncated", func(t *testing.T) {
		ops, client := newOps(t, 0, "")
		client.EXPECT().Generate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *backend.GenerateRequest) (*backend.GenerateResponse, error) {
				assert.Equal(t, "p", req.Prompt)
				assert.Len(t, req.Suffix, 1000)
				return nil, nil
			})

		_, err := ops.GenerateCompletion(ctx, chatops.CompletionRequest{Model: "m", Prompt: "p", Suffix: strings.Repeat("x", 2000)})
		assert.Equal(t, "Error: No response received from model", toolerr.Text(err))
	})

	t.Run("failed", func(t *testing.T) {
		ops, client := newOps(t, 1, "")
		client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, errors.New("model not loaded")).Times(2)

		_, err := ops.GenerateCompletion(ctx, chatops.CompletionRequest{Model: "m", Prompt: "p"})
		assert.Equal(t, "Error generating completion: model not loaded", toolerr.Text(err))
	})
}

func Test_ChatStream_Truncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}`)
	}))
	t.Cleanup(srv.Close)

	client, err := backend.NewOllama(srv.URL, time.Second)
	require.NoError(t, err)
	ops := chatops.New(client, retry.NewInvoker(retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}), "")

	var chunks []string
	for c := range ops.ChatStream(context.Background(), chatops.Request{Model: "llama3", Message: "hi"}) {
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{
		"Hel",
		"lo",
		"Error communicating with model: stream ended before completion: unexpected EOF",
	}, chunks)
}
