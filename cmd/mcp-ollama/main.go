// Command mcp-ollama serves Ollama model management and chat tools over MCP.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
