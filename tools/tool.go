package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/jsonutil"
	"github.com/effective-security/mcp-ollama/pkg/metricskey"
	"github.com/effective-security/mcp-ollama/pkg/schema"
	"github.com/effective-security/mcp-ollama/pkg/toolerr"
	mcp "github.com/metoro-io/mcp-golang"
)

// RunFunc executes a tool with parsed arguments.
type RunFunc[I any] func(ctx context.Context, args *I) (string, error)

// Tool is a tool with typed arguments.
// A failure of RunFunc is reported as error text, not as a failed call.
type Tool[I any] struct {
	name        string
	description string
	funcParams  any
	run         RunFunc[I]
	callback    Callback
}

var _ IMCPTool = (*Tool[struct{}])(nil)

// New returns a tool, the parameters schema is derived from I.
func New[I any](name, description string, run RunFunc[I]) (*Tool[I], error) {
	var def I
	sc, err := schema.New(reflect.TypeOf(def))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Tool[I]{
		name:        name,
		description: description,
		funcParams:  sc.Parameters,
		run:         run,
	}, nil
}

// WithCallback sets the handler of the lifecycle events.
func (t *Tool[I]) WithCallback(cb Callback) *Tool[I] {
	t.callback = cb
	return t
}

func (t *Tool[I]) Name() string {
	return t.name
}

func (t *Tool[I]) Description() string {
	return t.description
}

func (t *Tool[I]) Parameters() any {
	return t.funcParams
}

// Call implements ITool
func (t *Tool[I]) Call(ctx context.Context, input string) (string, error) {
	var args I
	input = strings.TrimSpace(input)
	if input == "" {
		input = "{}"
	}
	if err := json.Unmarshal(jsonutil.CleanJSON([]byte(input)), &args); err != nil {
		return "", errors.WithStack(ErrFailedUnmarshalInput)
	}
	return t.Run(ctx, &args), nil
}

// Run executes the tool and returns the result, or the error text.
// The context passed to the callback carries the CallID.
func (t *Tool[I]) Run(ctx context.Context, args *I) string {
	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, t.name)

	if args == nil {
		args = new(I)
	}
	ctx = ensureCallID(ctx)

	var input string
	if t.callback != nil {
		input = jsonutil.ToJSON(args)
		t.callback.OnToolStart(ctx, t, input)
	}

	out, err := t.run(ctx, args)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name, toolerr.KindOf(err).String())
		if t.callback != nil {
			t.callback.OnToolError(ctx, t, input, err)
		}
		return toolerr.Text(err)
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, t.name)
	if t.callback != nil {
		t.callback.OnToolEnd(ctx, t, input, out)
	}
	return out
}

// RegisterMCP implements IMCPTool
func (t *Tool[I]) RegisterMCP(registrator McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// RunMCP is the MCP handler of the tool.
func (t *Tool[I]) RunMCP(ctx context.Context, args *I) (*mcp.ToolResponse, error) {
	return mcp.NewToolResponse(mcp.NewTextContent(t.Run(ctx, args))), nil
}
