// Starledger MCP Server - Exposes star balances and revenue as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/starledger/internal/mcpserver"
)

type mcpConfig struct {
	APIURL string `env:"STARLEDGER_API_URL" envDefault:"http://localhost:8080"`
	APIKey string `env:"STARLEDGER_API_KEY"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[mcpConfig]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(mcpserver.Config{
		APIURL: cfg.APIURL,
		APIKey: cfg.APIKey,
	})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
