package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chat-llm",
	Short: "Multi-session chat against OpenAI-compatible LLM APIs",
	Long: `chat-llm keeps multiple chat conversations alive at once and talks to any
OpenAI-compatible chat completion endpoint.

Examples:
  chat-llm chat                       # interactive chat in the terminal
  chat-llm chat --model OpenAI        # pick a configured model
  chat-llm models                     # list configured models
  chat-llm serve                      # expose sessions over WebSocket`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
