package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/gatekeeper/internal/config"
	"github.com/lucasnoah/gatekeeper/internal/prompt"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect gatekeeper configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings, the policy file and templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if _, err := config.LoadDefault(s.PolicyFile); err != nil {
			return err
		}
		if _, err := prompt.LoadDir(s.TemplateDir); err != nil {
			return err
		}
		cmd.Println("Configuration is valid.")
		return nil
	},
}

// shownSettings is Settings with secrets reduced to whether they are set.
type shownSettings struct {
	Repo         string `yaml:"repo"`
	PolicyFile   string `yaml:"policy_file"`
	TemplateDir  string `yaml:"template_dir"`
	DBDriver     string `yaml:"db_driver"`
	DBPath       string `yaml:"db_path"`
	DBURLSet     bool   `yaml:"db_url_set"`
	RedisURLSet  bool   `yaml:"redis_url_set"`
	LLMBackend   string `yaml:"llm_backend"`
	LLMModel     string `yaml:"llm_model"`
	LLMMaxTokens int    `yaml:"llm_max_tokens"`
	GitHubToken  bool   `yaml:"github_token_set"`
	AnthropicKey bool   `yaml:"anthropic_api_key_set"`
	OpenAIKey    bool   `yaml:"openai_api_key_set"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved settings (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(shownSettings{
			Repo:         s.Repo,
			PolicyFile:   s.PolicyFile,
			TemplateDir:  s.TemplateDir,
			DBDriver:     s.DBDriver,
			DBPath:       s.DBPath,
			DBURLSet:     s.DBURL != "",
			RedisURLSet:  s.RedisURL != "",
			LLMBackend:   s.LLMBackend,
			LLMModel:     s.LLMModel,
			LLMMaxTokens: s.LLMMaxTokens,
			GitHubToken:  s.GitHubToken != "",
			AnthropicKey: s.AnthropicAPIKey != "",
			OpenAIKey:    s.OpenAIAPIKey != "",
		})
		if err != nil {
			return fmt.Errorf("marshalling settings: %w", err)
		}
		cmd.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
