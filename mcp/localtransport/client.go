package localtransport

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Client issues JSON-RPC requests to a server connected to the Transport.
type Client struct {
	t  *Transport
	id atomic.Int64
}

// NewClient returns a client of the transport
func NewClient(t *Transport) *Client {
	return &Client{t: t}
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Request sends the request and returns the raw result.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(&rpcRequest{
		Jsonrpc: "2.0",
		ID:      c.id.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	res, err := c.t.HandleMessage(ctx, body)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.Errorf("no response to %s", method)
	}
	if res.JsonRpcError != nil {
		return nil, errors.Errorf("%s: %s", method, res.JsonRpcError.Error.Message)
	}
	if res.JsonRpcResponse == nil {
		return nil, errors.Errorf("unexpected response to %s", method)
	}
	return json.RawMessage(res.JsonRpcResponse.Result), nil
}

// ToolInfo describes a tool served by the server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListTools returns the tools served by the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.Request(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var res struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tools")
	}
	return res.Tools, nil
}

// CallTool calls the tool and returns the concatenated text content.
func (c *Client) CallTool(ctx context.Context, name string, args any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.Request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var res struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal tool response")
	}

	var b strings.Builder
	for _, c := range res.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String(), nil
}
