package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chat-llm/internal/config"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Long: `List the models configured in config.yaml along with their endpoints.

Examples:
  chat-llm models          # table of configured models
  chat-llm models --json   # output as JSON`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	type modelEntry struct {
		Name    string `json:"name"`
		BaseURL string `json:"base_url"`
		Model   string `json:"model"`
		HasKey  bool   `json:"has_key"`
		Default bool   `json:"default"`
	}

	entries := make([]modelEntry, 0, len(cfg.Models))
	for _, name := range cfg.ModelNames() {
		mc, err := cfg.Resolve(name)
		if err != nil {
			continue
		}
		entries = append(entries, modelEntry{
			Name:    name,
			BaseURL: mc.BaseURL,
			Model:   mc.Model,
			HasKey:  mc.Credential() == nil,
			Default: name == cfg.DefaultModel,
		})
	}

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		marker := " "
		if e.Default {
			marker = "*"
		}
		key := "no key"
		if e.HasKey {
			key = "key set"
		}
		fmt.Printf("%s %-12s %s (%s, %s)\n", marker, e.Name, e.Model, e.BaseURL, key)
	}
	if path, err := config.Path(); err == nil {
		fmt.Printf("\nTo add a model, edit %s:\n  models:\n    MyModel:\n      base_url: https://...\n      model: <model-name>\n      api_key: ${MY_KEY}\n", path)
	}
	return nil
}
