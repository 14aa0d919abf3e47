// Package server serves the Ollama tools over MCP.
package server

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/callbacks"
	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/chatops"
	"github.com/effective-security/mcp-ollama/pkg/config"
	"github.com/effective-security/mcp-ollama/pkg/modelops"
	"github.com/effective-security/mcp-ollama/pkg/retry"
	"github.com/effective-security/mcp-ollama/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "server")

// versionCheckTimeout bounds the startup check of the endpoint
const versionCheckTimeout = 5 * time.Second

// Server holds the tools and their dependencies.
type Server struct {
	cfg    *config.Config
	client backend.Client
	tools  []tools.IMCPTool
	stats  *callbacks.Stats
}

// Option configures the Server.
type Option func(*options)

type options struct {
	callbacks []tools.Callback
}

// WithCallback adds a handler of the tool events,
// next to the logger and the stats.
func WithCallback(cb tools.Callback) Option {
	return func(o *options) {
		o.callbacks = append(o.callbacks, cb)
	}
}

// New returns a Server for the backend client.
func New(cfg *config.Config, client backend.Client, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	invoker := retry.NewInvoker(cfg.RetryPolicy())
	models := modelops.New(client, invoker)
	chat := chatops.New(client, invoker, cfg.Ollama.DefaultModel)

	stats := callbacks.NewStats()
	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger), stats)
	for _, c := range o.callbacks {
		cb.Add(c)
	}

	list, err := tools.NewOllama(models, chat, cfg).Tools(cb)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create tools")
	}

	return &Server{
		cfg:    cfg,
		client: client,
		tools:  list,
		stats:  stats,
	}, nil
}

// Tools returns the served tools.
func (s *Server) Tools() []tools.IMCPTool {
	return s.tools
}

// Stats returns the per tool call counters.
func (s *Server) Stats() []callbacks.ToolStats {
	return s.stats.Snapshot()
}

// Register registers every tool.
func (s *Server) Register(registrator tools.McpServerRegistrator) error {
	return tools.RegisterAll(registrator, s.tools...)
}

// Start registers the tools on a new MCP server over the transport
// and starts serving, it does not block.
func (s *Server) Start(ctx context.Context, t transport.Transport) error {
	srv := mcp.NewServer(t,
		mcp.WithName(s.cfg.Server.Name),
		mcp.WithVersion(s.cfg.Server.Version),
	)
	if err := srv.Serve(); err != nil {
		return errors.WithMessage(err, "failed to serve")
	}
	if err := s.Register(srv); err != nil {
		return err
	}

	logger.KV(xlog.INFO,
		"status", "started",
		"name", s.cfg.Server.Name,
		"version", s.cfg.Server.Version,
		"host", s.cfg.Ollama.Host,
		"default_model", values.StringsCoalesce(s.cfg.Ollama.DefaultModel, "Not configured"),
		"tools", len(s.tools),
	)
	s.checkVersion(ctx)
	return nil
}

// Serve serves the tools over the transport until ctx is done.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	if err := s.Start(ctx, t); err != nil {
		return err
	}

	<-ctx.Done()

	for _, st := range s.stats.Snapshot() {
		logger.KV(xlog.INFO,
			"status", "tool_stats",
			"tool", st.Tool,
			"calls", st.Calls,
			"succeeded", st.Succeeded,
			"failed", st.Failed,
			"duration", st.Duration.String(),
		)
	}
	logger.KV(xlog.INFO, "status", "stopped", "uptime", s.stats.Uptime().String())
	return nil
}

// checkVersion logs the endpoint version, an unreachable endpoint is not fatal.
func (s *Server) checkVersion(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	v, err := s.client.Version(ctx)
	if err != nil {
		logger.KV(xlog.WARNING, "status", "ollama_unreachable", "host", s.cfg.Ollama.Host, "err", err.Error())
		return
	}
	logger.KV(xlog.INFO, "status", "ollama_reachable", "host", s.cfg.Ollama.Host, "version", v)
}
