package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/chatops"
	"github.com/effective-security/mcp-ollama/pkg/config"
	"github.com/effective-security/mcp-ollama/pkg/modelops"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "tools")

// Tool names
const (
	ListModels           = "list_models"
	ShowModel            = "show_model"
	PullModel            = "pull_model"
	RemoveModel          = "remove_model"
	Chat                 = "chat"
	ChatStream           = "chat_stream"
	ChatWithDefaultModel = "chat_with_default_model"
	GenerateCompletion   = "generate_completion"
	GetConfig            = "get_config"
	GetDefaultModel      = "get_default_model"
)

// NoArgs is the arguments of tools without parameters.
type NoArgs struct{}

// ModelArgs identifies a model.
type ModelArgs struct {
	Name string `json:"name" yaml:"name" jsonschema:"description=Name of the model\\, for example llama3:8b"`
}

// ChatArgs is the arguments of the chat tools.
type ChatArgs struct {
	Model        string `json:"model" yaml:"model" jsonschema:"description=Name of the model to use"`
	Message      string `json:"message" yaml:"message" jsonschema:"description=The message to send"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" jsonschema:"description=Optional system prompt to set context"`
	Context      any    `json:"context,omitempty" yaml:"context,omitempty" jsonschema:"description=Optional conversation context: a JSON array of messages with role and content\\, or a string holding such array"`
}

// DefaultChatArgs is the arguments of chat_with_default_model.
type DefaultChatArgs struct {
	Message      string `json:"message" yaml:"message" jsonschema:"description=The message to send"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" jsonschema:"description=Optional system prompt to set context"`
	Context      any    `json:"context,omitempty" yaml:"context,omitempty" jsonschema:"description=Optional conversation context: a JSON array of messages with role and content\\, or a string holding such array"`
}

// CompletionArgs is the arguments of generate_completion.
type CompletionArgs struct {
	Model        string `json:"model" yaml:"model" jsonschema:"description=Name of the model to use"`
	Prompt       string `json:"prompt" yaml:"prompt" jsonschema:"description=The prompt to complete"`
	Suffix       string `json:"suffix,omitempty" yaml:"suffix,omitempty" jsonschema:"description=Optional text that follows the completion"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" jsonschema:"description=Optional system prompt"`
}

// Ollama is the set of tools backed by the model and chat operations.
type Ollama struct {
	models *modelops.Ops
	chat   *chatops.Ops
	cfg    *config.Config
}

// NewOllama returns the tool set.
func NewOllama(models *modelops.Ops, chat *chatops.Ops, cfg *config.Config) *Ollama {
	return &Ollama{
		models: models,
		chat:   chat,
		cfg:    cfg,
	}
}

// Tools returns every tool of the set, the callback may be nil.
func (o *Ollama) Tools(cb Callback) ([]IMCPTool, error) {
	var list []IMCPTool
	var errs []error

	add := func(t IMCPTool, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		list = append(list, t)
	}

	add(newTool(cb, ListModels,
		"List all downloaded Ollama models.",
		func(ctx context.Context, _ *NoArgs) (string, error) {
			return o.models.ListModels(ctx)
		}))
	add(newTool(cb, ShowModel,
		"Get detailed information about a specific model.",
		func(ctx context.Context, args *ModelArgs) (string, error) {
			return o.models.ShowModel(ctx, args.Name)
		}))
	add(newTool(cb, PullModel,
		"Download a model from Ollama registry.",
		func(ctx context.Context, args *ModelArgs) (string, error) {
			return o.models.PullModel(ctx, args.Name)
		}))
	add(newTool(cb, RemoveModel,
		"Remove a downloaded model.",
		func(ctx context.Context, args *ModelArgs) (string, error) {
			return o.models.RemoveModel(ctx, args.Name)
		}))
	add(newTool(cb, Chat,
		"Send a chat message to a model and get response.",
		func(ctx context.Context, args *ChatArgs) (string, error) {
			return o.chat.Chat(ctx, chatRequest(ctx, args.Model, args.Message, args.SystemPrompt, args.Context))
		}))
	add(newTool(cb, ChatStream,
		"Send a chat message with streaming response. Returns the complete response, streamed chunks combined.",
		func(ctx context.Context, args *ChatArgs) (string, error) {
			seq := o.chat.ChatStream(ctx, chatRequest(ctx, args.Model, args.Message, args.SystemPrompt, args.Context))
			return chatops.Collect(seq), nil
		}))
	add(newTool(cb, ChatWithDefaultModel,
		"Chat with the default model configured in environment.",
		func(ctx context.Context, args *DefaultChatArgs) (string, error) {
			return o.chat.ChatWithDefaultModel(ctx, chatRequest(ctx, "", args.Message, args.SystemPrompt, args.Context))
		}))
	add(newTool(cb, GenerateCompletion,
		"Generate a completion using a model.",
		func(ctx context.Context, args *CompletionArgs) (string, error) {
			return o.chat.GenerateCompletion(ctx, chatops.CompletionRequest{
				Model:        args.Model,
				Prompt:       args.Prompt,
				Suffix:       args.Suffix,
				SystemPrompt: args.SystemPrompt,
			})
		}))
	add(newTool(cb, GetConfig,
		"Get current server configuration.",
		func(_ context.Context, _ *NoArgs) (string, error) {
			return o.cfg.Describe(), nil
		}))
	add(newTool(cb, GetDefaultModel,
		"Get the current default model name.",
		func(_ context.Context, _ *NoArgs) (string, error) {
			if o.cfg.Ollama.DefaultModel == "" {
				return config.NoDefaultModel, nil
			}
			return o.cfg.Ollama.DefaultModel, nil
		}))

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return list, nil
}

func newTool[I any](cb Callback, name, description string, run RunFunc[I]) (IMCPTool, error) {
	t, err := New(name, description, run)
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %s", name)
	}
	if cb != nil {
		t.WithCallback(cb)
	}
	return t, nil
}

func chatRequest(ctx context.Context, model, message, systemPrompt string, rawContext any) chatops.Request {
	history, err := ParseContext(rawContext)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "context_ignored", "err", err.Error())
	}
	return chatops.Request{
		Model:        model,
		Message:      message,
		SystemPrompt: systemPrompt,
		Context:      history,
	}
}
