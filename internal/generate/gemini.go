package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"draftline/internal/config"
	"draftline/internal/domain"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent API. One model handles
// briefing questions, one renders images, one writes copy.
type GeminiClient struct {
	BaseURL       string
	APIKey        string
	QuestionModel string
	ImageModel    string
	TextModel     string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// NewGemini builds a client from the workspace config's generation section.
func NewGemini(apiKey string, cfg *config.Config) *GeminiClient {
	c := &GeminiClient{
		BaseURL: defaultGeminiBaseURL,
		APIKey:  apiKey,
		Timeout: 60 * time.Second,
	}
	if cfg != nil {
		c.QuestionModel = cfg.Generation.QuestionModel
		c.ImageModel = cfg.Generation.ImageModel
		c.TextModel = cfg.Generation.TextModel
	}
	if c.QuestionModel == "" {
		c.QuestionModel = "gemini-3-flash-preview"
	}
	if c.ImageModel == "" {
		c.ImageModel = "gemini-2.5-flash-image"
	}
	if c.TextModel == "" {
		c.TextModel = "gemini-3-pro-preview"
	}
	return c
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
	ResponseSchema   any    `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// APIError wraps non-2xx Gemini responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ContextQuestions asks the question model for three short briefing questions
// about the prompt, constrained to a JSON string array.
func (c *GeminiClient) ContextQuestions(ctx context.Context, prompt string, t domain.ContentType) ([]string, error) {
	instruction := fmt.Sprintf(
		"A team member wants to produce %s content from this request: %q. "+
			"Ask exactly 3 short questions that would clarify objective, audience and tone. "+
			"Answer with a JSON array of strings only.", t, prompt)
	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: instruction}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
	resp, err := c.generate(ctx, c.QuestionModel, req)
	if err != nil {
		return nil, err
	}
	text := firstText(resp)
	if text == "" {
		return nil, ErrNoResult
	}
	var questions []string
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoResult
	}
	return questions, nil
}

// Content produces the draft for the request. Images come back as a data URI,
// text as plain copy. A response without usable content is ErrNoResult.
func (c *GeminiClient) Content(ctx context.Context, req ContentRequest) (string, error) {
	switch req.Type {
	case domain.TypeImage:
		return c.image(ctx, req)
	case domain.TypeText:
		return c.text(ctx, req)
	}
	return "", fmt.Errorf("unknown content type %s", req.Type)
}

func (c *GeminiClient) image(ctx context.Context, req ContentRequest) (string, error) {
	prompt := req.Prompt + briefLines(req.Brief)
	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	resp, err := c.generate(ctx, c.ImageModel, body)
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," + part.InlineData.Data, nil
			}
		}
	}
	return "", ErrNoResult
}

func (c *GeminiClient) text(ctx context.Context, req ContentRequest) (string, error) {
	prompt := "Write the marketing copy for this request: " + req.Prompt + briefLines(req.Brief)
	parts := []geminiPart{{Text: prompt}}
	if req.ReferenceImage != "" {
		if data, ok := decodeDataURI(req.ReferenceImage); ok {
			parts = append(parts, geminiPart{InlineData: data})
			parts = append(parts, geminiPart{Text: "The copy must match the attached visual."})
		}
	}
	body := geminiRequest{Contents: []geminiContent{{Parts: parts}}}
	resp, err := c.generate(ctx, c.TextModel, body)
	if err != nil {
		return "", err
	}
	text := firstText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoResult
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, model string, body geminiRequest) (geminiResponse, error) {
	var out geminiResponse
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.BaseURL, "/"), url.PathEscape(model))
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return out, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func firstText(resp geminiResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}

// decodeDataURI splits "data:<mime>;base64,<data>" into inline data. The
// payload stays base64 encoded, which is what the API expects.
func decodeDataURI(uri string) (*inlineData, bool) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, false
	}
	rest := strings.TrimPrefix(uri, "data:")
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || data == "" {
		return nil, false
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "image/png"
	}
	return &inlineData{MimeType: mime, Data: data}, true
}
