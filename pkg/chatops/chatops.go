// Package chatops implements the conversational operations:
// chat, streaming chat, default model chat and completion.
//
// Every operation validates the caller arguments before any backend call,
// and invokes the backend through the retry policy.
package chatops

import (
	"context"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/metricskey"
	"github.com/effective-security/mcp-ollama/pkg/retry"
	"github.com/effective-security/mcp-ollama/pkg/toolerr"
	"github.com/effective-security/mcp-ollama/pkg/validation"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "chatops")

// Names of backend calls, used in logs and metrics.
const (
	callChat       = "chat"
	callChatStream = "chat_stream"
	callGenerate   = "generate"
)

const (
	opChat     = "communicating with model"
	opGenerate = "generating completion"
)

// errStopped aborts the backend stream when the consumer stops reading.
var errStopped = errors.New("stream consumer stopped")

// Request is a chat request.
type Request struct {
	Model        string
	Message      string
	SystemPrompt string
	// Context is the prior conversation, sent as is.
	Context []backend.ChatMessage
}

// CompletionRequest is a completion request.
type CompletionRequest struct {
	Model        string
	Prompt       string
	Suffix       string
	SystemPrompt string
}

// Ops executes chat operations against the backend.
// Ops is stateless and safe for concurrent use.
type Ops struct {
	client       backend.Client
	invoker      *retry.Invoker
	defaultModel string
}

// New returns Ops, defaultModel may be empty.
func New(client backend.Client, invoker *retry.Invoker, defaultModel string) *Ops {
	return &Ops{
		client:       client,
		invoker:      invoker,
		defaultModel: defaultModel,
	}
}

// DefaultModel returns the configured default model.
func (o *Ops) DefaultModel() string {
	return o.defaultModel
}

// BuildMessages returns the conversation sent to the backend:
// the system prompt, if any, then the context, then the user message.
// The message is expected to be sanitized already.
func BuildMessages(systemPrompt string, history []backend.ChatMessage, message string) []backend.ChatMessage {
	msgs := make([]backend.ChatMessage, 0, len(history)+2)
	if sp := validation.Sanitize(systemPrompt, validation.MaxSystemPromptLength); sp != "" {
		msgs = append(msgs, backend.ChatMessage{Role: backend.RoleSystem, Content: sp})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, backend.ChatMessage{Role: backend.RoleUser, Content: message})
	return msgs
}

func (o *Ops) prepare(req Request) (*backend.ChatRequest, error) {
	if !validation.ModelName(req.Model) {
		return nil, toolerr.InvalidModelName()
	}
	msg := validation.Sanitize(req.Message, validation.MaxInputLength)
	if msg == "" {
		return nil, toolerr.Newf(toolerr.Validation, toolerr.MsgEmptyMessage)
	}
	return &backend.ChatRequest{
		Model:    req.Model,
		Messages: BuildMessages(req.SystemPrompt, req.Context, msg),
	}, nil
}

// Chat returns the assistant reply.
func (o *Ops) Chat(ctx context.Context, req Request) (string, error) {
	creq, err := o.prepare(req)
	if err != nil {
		return "", err
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "chat", "model", req.Model, "messages", len(creq.Messages))

	res, err := retry.Do(ctx, o.invoker, callChat, func(ctx context.Context) (*backend.ChatResponse, error) {
		return o.client.Chat(ctx, creq)
	})
	if err != nil {
		return "", toolerr.WrapBackend(err, opChat)
	}
	if res == nil {
		return "", toolerr.NoResponse()
	}
	return res.Message.Content, nil
}

// ChatStream returns the reply as a sequence of content fragments.
//
// The sequence can be consumed once, a second range yields nothing.
// A validation failure yields a single error text. Only the start of the
// stream is retried, a failure after the first fragment yields a final
// error text. Stopping the range aborts the backend stream.
func (o *Ops) ChatStream(ctx context.Context, req Request) iter.Seq[string] {
	var consumed atomic.Bool

	return func(yield func(string) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		creq, err := o.prepare(req)
		if err != nil {
			yield(toolerr.Text(err))
			return
		}

		logger.ContextKV(ctx, xlog.INFO, "status", "chat_stream", "model", req.Model, "messages", len(creq.Messages))

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			chunks  int
			stopped bool
		)
		_, err = retry.Do(ctx, o.invoker, callChatStream, func(ctx context.Context) (struct{}, error) {
			err := o.client.ChatStream(ctx, creq, func(content string) error {
				if content == "" {
					return nil
				}
				chunks++
				metricskey.StatsStreamChunks.IncrCounter(1, req.Model)
				if !yield(content) {
					stopped = true
					return errStopped
				}
				return nil
			})
			if stopped {
				return struct{}{}, nil
			}
			if err != nil && chunks > 0 {
				return struct{}{}, retry.Permanent(err)
			}
			return struct{}{}, err
		})

		if stopped {
			logger.ContextKV(ctx, xlog.DEBUG, "status", "stream_stopped", "model", req.Model, "chunks", chunks)
			return
		}
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "status", "stream_failed", "model", req.Model, "chunks", chunks, "err", err.Error())
			yield(toolerr.Text(toolerr.WrapBackend(err, opChat)))
		}
	}
}

// Collect concatenates the fragments of the sequence.
func Collect(seq iter.Seq[string]) string {
	var b strings.Builder
	for chunk := range seq {
		b.WriteString(chunk)
	}
	return b.String()
}

// ChatWithDefaultModel is Chat with the configured default model.
// Request.Model is ignored.
func (o *Ops) ChatWithDefaultModel(ctx context.Context, req Request) (string, error) {
	if o.defaultModel == "" {
		return "", toolerr.NoDefaultModel()
	}
	req.Model = o.defaultModel
	return o.Chat(ctx, req)
}

// GenerateCompletion returns the completion of the prompt.
// The system prompt is prepended to the prompt, separated by a blank line.
func (o *Ops) GenerateCompletion(ctx context.Context, req CompletionRequest) (string, error) {
	if !validation.ModelName(req.Model) {
		return "", toolerr.InvalidModelName()
	}
	prompt := validation.Sanitize(req.Prompt, validation.MaxInputLength)
	if prompt == "" {
		return "", toolerr.Newf(toolerr.Validation, toolerr.MsgEmptyPrompt)
	}
	if sp := validation.Sanitize(req.SystemPrompt, validation.MaxSystemPromptLength); sp != "" {
		prompt = sp + "\n\n" + prompt
	}

	greq := &backend.GenerateRequest{
		Model:  req.Model,
		Prompt: prompt,
		Suffix: validation.Sanitize(req.Suffix, validation.MaxSuffixLength),
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "generate", "model", req.Model)

	res, err := retry.Do(ctx, o.invoker, callGenerate, func(ctx context.Context) (*backend.GenerateResponse, error) {
		return o.client.Generate(ctx, greq)
	})
	if err != nil {
		return "", toolerr.WrapBackend(err, opGenerate)
	}
	if res == nil {
		return "", toolerr.NoResponse()
	}
	return res.Response, nil
}
