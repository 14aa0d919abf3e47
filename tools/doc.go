// Package tools defines the tools served over MCP, their parameter schemas,
// and the tool set backed by the Ollama model and chat operations.
// Tools never fail the protocol call for domain errors, the error is returned as text.
package tools
