package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GeminiTranslator calls the Generative Language generateContent endpoint.
type GeminiTranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewGeminiTranslator(cfg ClientConfig) (*GeminiTranslator, error) {
	if err := requireClientConfig(cfg); err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiTranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      newHTTPClient(cfg.Timeout),
	}, nil
}

func (t *GeminiTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	endpoint := t.baseURL + "/v1beta/models/" + url.PathEscape(t.model) + ":generateContent"
	rawRespBody, err := postJSON(ctx, t.client, endpoint,
		map[string]string{"x-goog-api-key": t.apiKey},
		buildGeminiPayload(t.temperature, req),
	)
	if err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode generate content response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return Result{}, fmt.Errorf("empty generate content candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return Result{}, ErrEmptyCompletion
	}
	return Result{
		Text:     text.String(),
		Provider: ProviderGemini,
		Model:    t.model,
	}, nil
}

func buildGeminiPayload(temperature float64, req Request) map[string]any {
	return map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		},
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]string{{"text": buildUserPrompt(req)}},
		}},
		"generationConfig": map[string]any{
			"temperature": temperature,
		},
	}
}
