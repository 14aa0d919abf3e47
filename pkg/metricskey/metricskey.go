package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsToolCallsSucceeded is base for counter metric for tool calls that produced a result
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	// StatsToolCallsFailed is base for counter metric for tool calls that produced an error text
	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool", "kind"},
	}

	StatsBackendCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_backend_calls_succeeded",
		Help:         "stats_backend_calls_succeeded provides total backend calls succeeded",
		RequiredTags: []string{"call"},
	}

	StatsBackendCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_backend_calls_failed",
		Help:         "stats_backend_calls_failed provides total backend calls failed after all retries",
		RequiredTags: []string{"call"},
	}

	StatsBackendCallsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_backend_calls_retried",
		Help:         "stats_backend_calls_retried provides total backend call retries",
		RequiredTags: []string{"call"},
	}

	StatsStreamChunks = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_stream_chunks",
		Help:         "stats_stream_chunks provides total chunks produced by streaming chat",
		RequiredTags: []string{"model"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfBackendCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_backend_call",
		Help:         "perf_backend_call provides duration of backend call including retries",
		RequiredTags: []string{"call"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfBackendCall,
	&PerfToolCall,
	&StatsBackendCallsFailed,
	&StatsBackendCallsRetried,
	&StatsBackendCallsSucceeded,
	&StatsStreamChunks,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
}
