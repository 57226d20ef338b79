// Package main provides the docchat CLI: chat with your documents in the terminal,
// ask one-off questions, or serve the session over MCP.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Conversational question answering over your documents",
	Long: `docchat indexes PDF, Markdown and text files and answers questions about them,
remembering the last few exchanges of the conversation.

Settings come from docchat.yaml (or --config), .env and the environment:
  OPENAI_API_KEY     OpenAI API key (required for the openai embedder and generator)
  DOCCHAT_EMBEDDER   openai or hash
  DOCCHAT_GENERATOR  openai or extractive
  DOCCHAT_INDEX      memory or qdrant
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN       GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to docchat.yaml")
	rootCmd.AddCommand(chatCmd, askCmd, serveCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
