// Package nl2sql asks a language model to turn a question about the invoicing
// dataset into SQL. Completions are returned verbatim; pulling a statement out
// of them is left to the caller.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

type Request struct {
	Question string `json:"question"`
}

type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type ClientConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// New builds the client for the configured provider.
func New(cfg ClientConfig) (Translator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAITranslator(cfg)
	case ProviderGemini:
		return NewGeminiTranslator(cfg)
	default:
		return nil, fmt.Errorf("unsupported translator provider %q", cfg.Provider)
	}
}
