package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/callbacks"
	"github.com/effective-security/mcp-ollama/mcp/httptransport"
	"github.com/effective-security/mcp-ollama/mcp/localtransport"
	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/config"
	"github.com/effective-security/mcp-ollama/pkg/server"
	"github.com/effective-security/mcp-ollama/tools"
	"github.com/effective-security/xlog"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "cmd")

type app struct {
	configFile string
	httpAddr   string
	callArgs   []string
	verbose    int
	newClient  func(cfg *config.Config) (backend.Client, error)
}

func newApp() *app {
	return &app{
		newClient: func(cfg *config.Config) (backend.Client, error) {
			return backend.NewOllama(cfg.Ollama.Host, cfg.Ollama.RequestTimeout.Duration())
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          config.DefaultName,
		Short:        "MCP server for Ollama",
		Long:         "mcp-ollama serves Ollama model management, chat and completion tools over MCP stdio.",
		SilenceUsage: true,
		Version:      config.DefaultVersion,
		RunE:         a.runServe,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to YAML or JSON configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP stdio (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
	serveCmd.Flags().StringVar(&a.httpAddr, "http", "", "Serve stateless MCP over HTTP on the address instead of stdio, for example :8080")

	callCmd := &cobra.Command{
		Use:   "call <tool> [json arguments]",
		Short: "Call a tool once and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  a.runCall,
	}
	callCmd.Flags().StringArrayVarP(&a.callArgs, "arg", "a", nil, "Set a string argument as key=value, repeatable")
	callCmd.Flags().CountVarP(&a.verbose, "verbose", "v", "Print the tool events to stderr, -vv adds the output")

	root.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  a.runConfig,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE:  a.runVersion,
		},
		&cobra.Command{
			Use:   "tools",
			Short: "Print the tools and their parameters",
			Args:  cobra.NoArgs,
			RunE:  a.runTools,
		},
		callCmd,
	)
	return root
}

// load returns the configuration and sets up logging to stderr,
// stdout is reserved for the MCP stdio channel.
func (a *app) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return nil, err
	}
	xlog.SetFormatter(xlog.NewStringFormatter(cmd.ErrOrStderr()))
	xlog.SetGlobalLogLevel(cfg.LogLevel())
	return cfg, nil
}

func (a *app) newServer(cfg *config.Config, opts ...server.Option) (*server.Server, error) {
	client, err := a.newClient(cfg)
	if err != nil {
		return nil, err
	}
	return server.New(cfg, client, opts...)
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}
	srv, err := a.newServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.httpAddr == "" {
		err = srv.Serve(ctx, stdio.NewStdioServerTransport())
	} else {
		err = serveHTTP(ctx, srv, a.httpAddr)
	}
	if err != nil {
		logger.KV(xlog.ERROR, "status", "serve_failed", "err", err.Error())
		return err
	}
	return nil
}

// serveHTTP serves until ctx is done or the listener fails.
func serveHTTP(ctx context.Context, srv *server.Server, addr string) error {
	tr := localtransport.New()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, tr)
	})
	g.Go(func() error {
		return httptransport.ListenAndServe(ctx, addr, httptransport.DefaultEndpoint, tr)
	})
	return g.Wait()
}

func (a *app) runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}
	s, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), s)
	return err
}

func (a *app) runVersion(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Server.Name, cfg.Server.Version)
	return err
}

func (a *app) runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}
	srv, err := a.newServer(cfg)
	if err != nil {
		return err
	}

	var list []tools.ITool
	for _, t := range srv.Tools() {
		list = append(list, t)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tools.GetDescriptions(list...))
	return err
}

func (a *app) runCall(cmd *cobra.Command, args []string) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}

	var opts []server.Option
	switch {
	case a.verbose > 1:
		opts = append(opts, server.WithCallback(callbacks.NewPrinter(cmd.ErrOrStderr(), callbacks.ModeVerbose)))
	case a.verbose == 1:
		opts = append(opts, server.WithCallback(callbacks.NewPrinter(cmd.ErrOrStderr(), callbacks.ModeDefault)))
	}
	srv, err := a.newServer(cfg, opts...)
	if err != nil {
		return err
	}

	params, err := callParams(args[1:], a.callArgs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tr := localtransport.New()
	if err := srv.Start(ctx, tr); err != nil {
		return err
	}

	out, err := localtransport.NewClient(tr).CallTool(ctx, args[0], params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

// callParams returns the JSON object of the optional arguments,
// with the key=value pairs set on it.
func callParams(args []string, pairs []string) (map[string]any, error) {
	body := "{}"
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		body = args[0]
	}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.Newf("invalid argument %q, expected key=value", kv)
		}
		var err error
		if body, err = sjson.Set(body, k, v); err != nil {
			return nil, errors.WithMessagef(err, "invalid argument %q", kv)
		}
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(body), &params); err != nil {
		return nil, errors.WithMessage(err, "arguments must be a JSON object")
	}
	return params, nil
}
