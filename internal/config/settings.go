package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the runtime configuration of the CLI, resolved from flags,
// GATEKEEPER_* environment variables and an optional gatekeeper.yaml.
type Settings struct {
	Repo        string
	PolicyFile  string
	TemplateDir string

	DBDriver string
	DBPath   string
	DBURL    string

	RedisURL string

	LLMBackend   string
	LLMModel     string
	LLMMaxTokens int

	GitHubToken     string
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// NewViper returns a viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("gatekeeper")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".gatekeeper"))
	}

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("llm.backend", "claude-cli")
	v.SetDefault("llm.model", "haiku")
	v.SetDefault("llm.max_tokens", 4096)

	_ = v.BindEnv("repo", "GATEKEEPER_REPO", "GITHUB_REPOSITORY")
	_ = v.BindEnv("github_token", "GATEKEEPER_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("anthropic_api_key", "GATEKEEPER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai_api_key", "GATEKEEPER_OPENAI_API_KEY", "OPENAI_API_KEY")
	return v
}

// LoadSettings reads the optional config file and resolves Settings.
// A missing config file is not an error.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	s := &Settings{
		Repo:            v.GetString("repo"),
		PolicyFile:      v.GetString("policy_file"),
		TemplateDir:     v.GetString("template_dir"),
		DBDriver:        strings.ToLower(v.GetString("db.driver")),
		DBPath:          v.GetString("db.path"),
		DBURL:           v.GetString("db.url"),
		RedisURL:        v.GetString("redis.url"),
		LLMBackend:      strings.ToLower(v.GetString("llm.backend")),
		LLMModel:        v.GetString("llm.model"),
		LLMMaxTokens:    v.GetInt("llm.max_tokens"),
		GitHubToken:     v.GetString("github_token"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
	}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// Validate checks enumerated settings.
func (s *Settings) Validate() []error {
	var errs []error
	switch s.DBDriver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, ValidationError{Field: "db.driver", Message: fmt.Sprintf("unknown driver %q (valid: sqlite, postgres, none)", s.DBDriver)})
	}
	if s.DBDriver == "postgres" && s.DBURL == "" {
		errs = append(errs, ValidationError{Field: "db.url", Message: "is required for the postgres driver"})
	}
	switch s.LLMBackend {
	case "claude-cli", "anthropic", "openai":
	default:
		errs = append(errs, ValidationError{Field: "llm.backend", Message: fmt.Sprintf("unknown backend %q (valid: claude-cli, anthropic, openai)", s.LLMBackend)})
	}
	if s.LLMMaxTokens < 1 {
		errs = append(errs, ValidationError{Field: "llm.max_tokens", Message: "must be at least 1"})
	}
	return errs
}
