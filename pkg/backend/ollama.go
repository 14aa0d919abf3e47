package backend

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/ollama/ollama/api"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "backend")

// DefaultPort of the Ollama endpoint
const DefaultPort = "11434"

const pullSuccess = "success"

// ErrStreamStalled is returned when a streamed response sends nothing
// for longer than the request timeout.
var ErrStreamStalled = errors.New("no data received from the model endpoint within the request timeout")

// Ollama implements Client over the Ollama HTTP API.
type Ollama struct {
	host    string
	timeout time.Duration
	api     *api.Client
}

// NewOllama returns a client for the Ollama endpoint at host,
// see ParseHost for the accepted forms.
//
// The timeout bounds non-streaming calls. Streaming calls are bounded
// by the time to the response headers and between two chunks.
func NewOllama(host string, timeout time.Duration) (*Ollama, error) {
	if timeout <= 0 {
		return nil, errors.Newf("invalid timeout: %s", timeout)
	}
	base, err := ParseHost(host)
	if err != nil {
		return nil, err
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout

	return &Ollama{
		host:    base.String(),
		timeout: timeout,
		api:     api.NewClient(base, &http.Client{Transport: tr}),
	}, nil
}

// ParseHost returns the endpoint URL in the forms accepted by OLLAMA_HOST,
// such as "127.0.0.1", "localhost:11434", "0.0.0.0" or "https://ollama.example.com".
// Without a scheme, http and port 11434 are assumed.
// With an explicit http or https scheme, the port defaults to 80 or 443.
func ParseHost(host string) (*url.URL, error) {
	s := strings.TrimSpace(host)
	if s == "" {
		return nil, errors.New("invalid host: empty")
	}

	port := DefaultPort
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		port = "80"
	case scheme == "https":
		port = "443"
	default:
		return nil, errors.Newf("invalid host: %s", host)
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		h, p = strings.Trim(hostport, "[]"), port
	}
	if h == "" {
		h = "127.0.0.1"
	}
	if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
		return nil, errors.Newf("invalid host port: %s", host)
	}

	u, err := url.Parse(scheme + "://" + net.JoinHostPort(h, p))
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid host: %s", host)
	}
	if path = strings.TrimSuffix(path, "/"); path != "" {
		u.Path = "/" + path
	}
	return u, nil
}

// Host returns the endpoint URL.
func (c *Ollama) Host() string {
	return c.host
}

func (c *Ollama) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// stallGuard cancels a streamed call when the endpoint sends nothing
// for the timeout. Time spent in the chunk handler is not counted.
type stallGuard struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelCauseFunc
}

func newStallGuard(ctx context.Context, timeout time.Duration) (context.Context, *stallGuard) {
	ctx, cancel := context.WithCancelCause(ctx)
	g := &stallGuard{
		timeout: timeout,
		cancel:  cancel,
	}
	g.timer = time.AfterFunc(timeout, func() { cancel(ErrStreamStalled) })
	return ctx, g
}

func (g *stallGuard) chunk(fn func() error) error {
	g.timer.Stop()
	err := fn()
	g.timer.Reset(g.timeout)
	return err
}

// finish releases the guard and returns the error of the streamed call.
// complete reports whether the endpoint signalled the end of the stream,
// the api client returns nil when the body is cut short.
func (g *stallGuard) finish(parent, ctx context.Context, err error, complete bool) error {
	g.timer.Stop()
	defer g.cancel(nil)

	if errors.Is(context.Cause(ctx), ErrStreamStalled) {
		return errors.WithStack(ErrStreamStalled)
	}
	if err == nil && complete {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return errors.WithStack(perr)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(io.ErrUnexpectedEOF, "stream ended before completion")
}

// List implements Client
func (c *Ollama) List(ctx context.Context) ([]ModelDescriptor, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.api.List(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	list := make([]ModelDescriptor, 0, len(res.Models))
	for _, m := range res.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		d := ModelDescriptor{
			Name:              name,
			Size:              m.Size,
			ModifiedAt:        m.ModifiedAt,
			Format:            m.Details.Format,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
		}
		d.HasDetails = d.Format != "" || d.ParameterSize != "" || d.QuantizationLevel != ""
		list = append(list, d)
	}
	return list, nil
}

// Show implements Client
func (c *Ollama) Show(ctx context.Context, name string) (*ModelDetails, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.api.Show(ctx, &api.ShowRequest{Model: name})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			logger.ContextKV(ctx, xlog.DEBUG, "model", name, "status", "not_found")
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	if res == nil {
		return nil, nil
	}

	return &ModelDetails{
		License:           res.License,
		Format:            res.Details.Format,
		ParameterSize:     res.Details.ParameterSize,
		QuantizationLevel: res.Details.QuantizationLevel,
		System:            res.System,
		Template:          res.Template,
		ModelInfo:         res.ModelInfo,
	}, nil
}

// Pull implements Client.
// The stream must end with the success status.
func (c *Ollama) Pull(ctx context.Context, name string) (*PullStatus, error) {
	sctx, guard := newStallGuard(ctx, c.timeout)

	var last *PullStatus
	err := c.api.Pull(sctx, &api.PullRequest{Model: name}, func(p api.ProgressResponse) error {
		return guard.chunk(func() error {
			if p.Status != "" {
				logger.ContextKV(ctx, xlog.DEBUG, "model", name, "status", p.Status, "completed", p.Completed, "total", p.Total)
			}
			last = &PullStatus{Status: p.Status}
			return nil
		})
	})
	if err = guard.finish(ctx, sctx, err, last != nil && last.Status == pullSuccess); err != nil {
		return nil, err
	}
	return last, nil
}

// Delete implements Client
func (c *Ollama) Delete(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.api.Delete(ctx, &api.DeleteRequest{Model: name})
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Chat implements Client
func (c *Ollama) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := false
	var res *ChatResponse
	err := c.api.Chat(ctx, chatRequest(req, &stream), func(r api.ChatResponse) error {
		res = &ChatResponse{
			Model: r.Model,
			Message: ChatMessage{
				Role:    Role(r.Message.Role),
				Content: r.Message.Content,
			},
			Done: r.Done,
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

// ChatStream implements Client.
// The stream must end with a done response.
func (c *Ollama) ChatStream(ctx context.Context, req *ChatRequest, fn ChunkFunc) error {
	sctx, guard := newStallGuard(ctx, c.timeout)

	stream := true
	done := false
	err := c.api.Chat(sctx, chatRequest(req, &stream), func(r api.ChatResponse) error {
		return guard.chunk(func() error {
			done = r.Done
			return fn(r.Message.Content)
		})
	})
	return guard.finish(ctx, sctx, err, done)
}

// Generate implements Client
func (c *Ollama) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := false
	var res *GenerateResponse
	err := c.api.Generate(ctx, &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Suffix: req.Suffix,
		Stream: &stream,
	}, func(r api.GenerateResponse) error {
		res = &GenerateResponse{
			Model:    r.Model,
			Response: r.Response,
			Done:     r.Done,
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

// Version implements Client
func (c *Ollama) Version(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	v, err := c.api.Version(ctx)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return v, nil
}

func chatRequest(req *ChatRequest, stream *bool) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return &api.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   stream,
	}
}
