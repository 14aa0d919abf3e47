package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/jsonutil"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// ErrFailedUnmarshalInput is returned by Call when the input does not match the parameters schema.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

// McpServerRegistrator registers tool handlers with an MCP server.
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// ITool is a tool callable by name with JSON arguments.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool.
	Description() string
	// Parameters returns the JSON schema of the tool arguments.
	Parameters() any

	// Call executes the tool with the given JSON input and returns the result.
	// If the tool fails to parse the input, it returns ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Callback receives tool lifecycle events.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
}

// IMCPTool is an interface that extends ITool to include functionality for
// registering the tool with an MCP server.
type IMCPTool interface {
	ITool
	RegisterMCP(registrator McpServerRegistrator) error
}

// RegisterAll registers the tools with the MCP server.
func RegisterAll(registrator McpServerRegistrator, list ...IMCPTool) error {
	for _, t := range list {
		if err := t.RegisterMCP(registrator); err != nil {
			return errors.WithMessagef(err, "failed to register tool %s", t.Name())
		}
	}
	return nil
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
	Parameters  any    `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns the indented JSON description of the tools.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return jsonutil.ToJSONIndent(d)
}
