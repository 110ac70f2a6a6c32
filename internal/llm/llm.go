package llm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Invoker sends a prompt to a language model and returns the response text.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Backends.
const (
	BackendClaudeCLI = "claude-cli"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Options configures an invoker.
type Options struct {
	Backend   string
	Model     string
	MaxTokens int
	APIKey    string
}

// New builds the invoker for opts.Backend.
func New(opts Options) (Invoker, error) {
	switch opts.Backend {
	case BackendClaudeCLI, "":
		return &ClaudeCLI{Model: opts.Model}, nil
	case BackendAnthropic:
		return NewAnthropic(opts.APIKey, opts.Model, opts.MaxTokens)
	case BackendOpenAI:
		return NewOpenAI(opts.APIKey, opts.Model, opts.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm backend %q (valid: claude-cli, anthropic, openai)", opts.Backend)
	}
}

// ClaudeCLI calls `claude --print` for a one-shot response.
type ClaudeCLI struct {
	Model string
}

func (c *ClaudeCLI) Invoke(ctx context.Context, prompt string) (string, error) {
	model := c.Model
	if model == "" {
		model = "haiku"
	}
	cmd := exec.CommandContext(ctx, "claude", "--print", "--model", model, prompt)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("claude --print: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
