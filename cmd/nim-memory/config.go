package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and
NIM_MEMORY_* environment overrides are applied. API keys are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		masked := *cfg
		masked.LLM.AnthropicAPIKey = mask(cfg.LLM.AnthropicAPIKey)
		masked.Embedding.GenAIAPIKey = mask(cfg.Embedding.GenAIAPIKey)
		masked.Redis.Password = mask(cfg.Redis.Password)

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), masked)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
