// acuity-mcp runs the focus engine behind MCP tools on stdio.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vthunder/acuity/internal/app"
	"github.com/vthunder/acuity/internal/config"
	"github.com/vthunder/acuity/internal/mcpserver"
)

func main() {
	// Load .env file - try executable's parent dir (repo root), then exe dir, then cwd
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"),
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			config.LoadEnv(p)
			break
		}
	}

	cfg, err := config.Load(os.Getenv("ACUITY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	a, err := app.Build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	s := mcpserver.NewServer("acuity", "1.0.0", mcpserver.NewTools(a.Engine, a.Ollama))
	if err := mcpserver.Serve(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}
