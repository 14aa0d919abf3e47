// Package localtransport implements an in-process MCP transport:
// requests are handed to the server directly, without a stream.
package localtransport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/metoro-io/mcp-golang/transport"
)

// Transport is the server side of the in-process transport.
// It is safe for concurrent requests.
type Transport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	lock    sync.RWMutex
	pending map[int64]chan *transport.BaseJsonRpcMessage
	counter atomic.Int64
}

var _ transport.Transport = (*Transport)(nil)

// ErrNotConnected is returned by HandleMessage before a server is connected.
var ErrNotConnected = errors.New("transport is not connected")

// New returns Transport
func New() *Transport {
	return &Transport{
		pending: make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
}

// Start implements Transport.Start
func (t *Transport) Start(ctx context.Context) error {
	return nil
}

// Send implements Transport.Send, it delivers the response to the pending request.
// Notifications have no pending request and are dropped.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message == nil {
		return errors.New("nil message")
	}

	var key transport.RequestId
	switch {
	case message.JsonRpcResponse != nil:
		key = message.JsonRpcResponse.Id
	case message.JsonRpcError != nil:
		key = message.JsonRpcError.Id
	default:
		return nil
	}

	t.lock.RLock()
	ch := t.pending[int64(key)]
	t.lock.RUnlock()

	if ch == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}
	// buffered, a late response to a cancelled request does not block
	select {
	case ch <- message:
	default:
	}
	return nil
}

// Close implements Transport.Close
func (t *Transport) Close() error {
	t.lock.RLock()
	handler := t.closeHandler
	t.lock.RUnlock()

	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Transport) SetCloseHandler(handler func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.messageHandler = handler
}

// HandleMessage passes a JSON-RPC request or notification to the server.
// For requests it waits for the response, or until ctx is done.
// The response carries the id of the request.
func (t *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	t.lock.RLock()
	handler := t.messageHandler
	t.lock.RUnlock()

	if handler == nil {
		return nil, errors.WithStack(ErrNotConnected)
	}

	var request transport.BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		var notification transport.BaseJSONRPCNotification
		if nerr := json.Unmarshal(body, &notification); nerr != nil {
			t.reportError(errors.Wrap(err, "invalid message"))
			return nil, errors.Wrap(err, "invalid message")
		}
		handler(ctx, transport.NewBaseMessageNotification(&notification))
		return nil, nil
	}

	key := t.counter.Add(1)
	ch := make(chan *transport.BaseJsonRpcMessage, 1)

	t.lock.Lock()
	t.pending[key] = ch
	t.lock.Unlock()

	defer func() {
		t.lock.Lock()
		delete(t.pending, key)
		t.lock.Unlock()
	}()

	callerID := request.Id
	request.Id = transport.RequestId(key)
	handler(ctx, transport.NewBaseMessageRequest(&request))

	select {
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	case res := <-ch:
		if res.JsonRpcResponse != nil {
			res.JsonRpcResponse.Id = callerID
		}
		if res.JsonRpcError != nil {
			res.JsonRpcError.Id = callerID
		}
		return res, nil
	}
}

func (t *Transport) reportError(err error) {
	t.lock.RLock()
	handler := t.errorHandler
	t.lock.RUnlock()

	if handler != nil {
		handler(err)
	}
}
