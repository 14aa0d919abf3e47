// Package backend describes the model-serving endpoint used by the tools,
// and provides its Ollama implementation.
package backend

import (
	"context"
	"time"
)

//go:generate mockgen -source=backend.go -destination=../../mocks/mockbackend/backend_mock.gen.go -package mockbackend

// Role of a chat message
type Role string

// Chat roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ModelDescriptor describes a locally available model.
type ModelDescriptor struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
	// HasDetails is set when the backend reported the details below.
	HasDetails        bool
	Format            string
	ParameterSize     string
	QuantizationLevel string
}

// ModelDetails is the result of Show.
type ModelDetails struct {
	License           string
	Format            string
	ParameterSize     string
	QuantizationLevel string
	System            string
	Template          string
	ModelInfo         map[string]any
}

// PullStatus is the final status reported by a model download.
type PullStatus struct {
	Status string
}

// ChatRequest is a request for a chat completion.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
}

// ChatResponse is a non-streaming chat result.
type ChatResponse struct {
	Model   string
	Message ChatMessage
	Done    bool
}

// GenerateRequest is a request for a raw completion.
type GenerateRequest struct {
	Model  string
	Prompt string
	Suffix string
}

// GenerateResponse is a non-streaming completion result.
type GenerateResponse struct {
	Model    string
	Response string
	Done     bool
}

// ChunkFunc receives streamed content fragments.
// Returning an error aborts the stream and the error is returned by ChatStream.
type ChunkFunc func(content string) error

// Client is the model-serving endpoint.
// Methods returning a pointer return nil when the endpoint reported no data.
type Client interface {
	// List returns locally available models in the order reported by the endpoint.
	List(ctx context.Context) ([]ModelDescriptor, error)
	// Show returns details of the model, or nil if the model is not known.
	Show(ctx context.Context, name string) (*ModelDetails, error)
	// Pull downloads the model and returns the final status.
	Pull(ctx context.Context, name string) (*PullStatus, error)
	// Delete removes the model.
	Delete(ctx context.Context, name string) error
	// Chat returns the assistant reply, or nil if none was received.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// ChatStream invokes fn for every streamed fragment, in order.
	ChatStream(ctx context.Context, req *ChatRequest, fn ChunkFunc) error
	// Generate returns the completion, or nil if none was received.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	// Version returns the version of the endpoint.
	Version(ctx context.Context) (string, error)
}
