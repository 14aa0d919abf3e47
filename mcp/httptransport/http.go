// Package httptransport serves MCP JSON-RPC over stateless HTTP:
// every POST carries one message, the response is the JSON-RPC response.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/mcp/localtransport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama/mcp", "httptransport")

// DefaultEndpoint is the path of the MCP endpoint
const DefaultEndpoint = "/mcp"

// maxBodySize limits the size of a request
const maxBodySize = 4 << 20

const shutdownTimeout = 5 * time.Second

// Handler passes the requests to the server connected to the transport.
type Handler struct {
	t *localtransport.Transport
}

// NewHandler returns Handler
func NewHandler(t *localtransport.Transport) *Handler {
	return &Handler{t: t}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodySize {
		http.Error(w, "request is too large", http.StatusRequestEntityTooLarge)
		return
	}

	res, err := h.t.HandleMessage(ctx, body)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "status", "handle_message", "err", err.Error())
		if errors.Is(err, localtransport.ErrNotConnected) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if res == nil {
		// notification
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var payload any
	switch {
	case res.JsonRpcResponse != nil:
		payload = res.JsonRpcResponse
	case res.JsonRpcError != nil:
		payload = res.JsonRpcError
	default:
		http.Error(w, "unexpected response", http.StatusInternalServerError)
		return
	}

	js, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

// ListenAndServe serves the endpoint on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr, endpoint string, t *localtransport.Transport) error {
	mux := http.NewServeMux()
	mux.Handle(endpoint, NewHandler(t))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errs := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "addr", addr, "endpoint", endpoint)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.WithMessagef(err, "failed to listen on %s", addr)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
