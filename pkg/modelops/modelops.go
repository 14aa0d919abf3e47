// Package modelops implements the model management operations:
// list, show, pull and remove.
package modelops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/retry"
	"github.com/effective-security/mcp-ollama/pkg/toolerr"
	"github.com/effective-security/mcp-ollama/pkg/validation"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "modelops")

const (
	// NoModelsFound is returned by ListModels when nothing is installed.
	NoModelsFound = "No models found. Use 'pull_model' to download a model first."

	listSeparator = "\n---\n"
	unknown       = "Unknown"
	notAvailable  = "N/A"
)

// Names of backend calls, used in logs and metrics.
const (
	callList   = "list"
	callShow   = "show"
	callPull   = "pull"
	callDelete = "delete"
)

// modelInfoKeys maps the Model Info lines to the keys reported by the backend.
var modelInfoKeys = []struct {
	label string
	key   string
}{
	{"General", "general.architecture"},
	{"BPW", "general.file_type"},
	{"Parameters", "general.parameter_count"},
}

// Ops executes model management operations against the backend.
// Ops is stateless and safe for concurrent use.
type Ops struct {
	client  backend.Client
	invoker *retry.Invoker
}

// New returns Ops
func New(client backend.Client, invoker *retry.Invoker) *Ops {
	return &Ops{
		client:  client,
		invoker: invoker,
	}
}

// ListModels returns the formatted list of installed models.
func (o *Ops) ListModels(ctx context.Context) (string, error) {
	list, err := retry.Do(ctx, o.invoker, callList, o.client.List)
	if err != nil {
		return "", toolerr.WrapBackend(err, "listing models")
	}
	if len(list) == 0 {
		return NoModelsFound, nil
	}

	formatted := make([]string, 0, len(list))
	for _, m := range list {
		formatted = append(formatted, FormatModel(m))
	}
	return strings.Join(formatted, listSeparator), nil
}

// ShowModel returns the formatted details of the model.
func (o *Ops) ShowModel(ctx context.Context, name string) (string, error) {
	if !validation.ModelName(name) {
		return "", toolerr.InvalidModelName()
	}

	d, err := retry.Do(ctx, o.invoker, callShow, func(ctx context.Context) (*backend.ModelDetails, error) {
		return o.client.Show(ctx, name)
	})
	if err != nil {
		return "", toolerr.WrapBackend(err, "getting model information")
	}
	if d == nil {
		return fmt.Sprintf("No information found for model '%s'", name), nil
	}
	return FormatDetails(name, d), nil
}

// PullModel downloads the model.
func (o *Ops) PullModel(ctx context.Context, name string) (string, error) {
	if !validation.ModelName(name) {
		return "", toolerr.InvalidModelName()
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "pulling", "model", name)

	st, err := retry.Do(ctx, o.invoker, callPull, func(ctx context.Context) (*backend.PullStatus, error) {
		return o.client.Pull(ctx, name)
	})
	if err != nil {
		return "", toolerr.WrapBackend(err, "downloading model")
	}
	if st != nil && st.Status == "success" {
		return "Successfully downloaded model: " + name, nil
	}
	return "Download completed for model: " + name, nil
}

// RemoveModel deletes the model.
func (o *Ops) RemoveModel(ctx context.Context, name string) (string, error) {
	if !validation.ModelName(name) {
		return "", toolerr.InvalidModelName()
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "removing", "model", name)

	_, err := retry.Do(ctx, o.invoker, callDelete, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.client.Delete(ctx, name)
	})
	if err != nil {
		return "", toolerr.WrapBackend(err, "removing model")
	}
	return "Successfully removed model: " + name, nil
}

// FormatModel renders a list entry.
func FormatModel(m backend.ModelDescriptor) string {
	modified := unknown
	if !m.ModifiedAt.IsZero() {
		modified = m.ModifiedAt.Format(time.RFC3339)
	}

	lines := []string{
		"Name: " + values.StringsCoalesce(m.Name, unknown),
		"Size: " + strconv.FormatInt(m.Size, 10),
		"Modified: " + modified,
	}
	if m.HasDetails {
		lines = append(lines,
			"Format: "+values.StringsCoalesce(m.Format, unknown),
			"Parameter Size: "+values.StringsCoalesce(m.ParameterSize, unknown),
			"Quantization Level: "+values.StringsCoalesce(m.QuantizationLevel, unknown),
		)
	}
	return strings.Join(lines, "\n")
}

// FormatDetails renders the details of the model.
// System prompt, template and model info sections are present only when reported.
func FormatDetails(name string, d *backend.ModelDetails) string {
	lines := []string{
		"Model: " + name,
		"License: " + values.StringsCoalesce(d.License, unknown),
		"Format: " + values.StringsCoalesce(d.Format, unknown),
		"Parameter Size: " + values.StringsCoalesce(d.ParameterSize, unknown),
		"Quantization Level: " + values.StringsCoalesce(d.QuantizationLevel, unknown),
	}
	if d.System != "" {
		lines = append(lines, "\nSystem Prompt:\n"+d.System)
	}
	if d.Template != "" {
		lines = append(lines, "\nTemplate:\n"+d.Template)
	}
	if len(d.ModelInfo) > 0 {
		lines = append(lines, "\nModel Info:")
		for _, k := range modelInfoKeys {
			v := notAvailable
			if val, ok := d.ModelInfo[k.key]; ok && val != nil {
				v = infoValue(val)
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", k.label, v))
		}
	}
	return strings.Join(lines, "\n")
}

// infoValue renders JSON numbers without exponent.
func infoValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
