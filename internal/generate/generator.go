// internal/generate/generator.go
package generate

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/config"
	"github.com/tistorylab/autopub/internal/htmlutil"
)

// Generator produces post content for a topic.
type Generator interface {
	Generate(ctx context.Context, req Request) (*schemas.GeneratedContent, error)
}

// Request describes what to generate.
type Request struct {
	Topic string
	// Reference is optional scraped source material to ground the post.
	Reference string
	Tags      []string
}

const systemPrompt = `You are a Korean tech blog writer. Write a complete blog post
for the given topic as JSON with exactly these keys:
  "title": the post title, plain text, no quotes or markdown
  "content": the post body as clean HTML using only p, h2, h3, ul, ol, li, b, i, a, blockquote and code tags
  "meta_description": a one-or-two sentence summary under 150 characters
Write naturally and informatively. Do not wrap the JSON in markdown fences.`

// generatedPayload is the JSON shape the model is instructed to return.
type generatedPayload struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	MetaDescription string `json:"meta_description"`
}

// GeminiGenerator generates posts with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewGeminiGenerator initializes the client.
func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required for content generation")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		cfg:    cfg,
		logger: logger.Named("generator"),
	}, nil
}

// Generate asks the model for a post and cleans the result.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*schemas.GeneratedContent, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	temperature := g.cfg.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  g.cfg.MaxTokens,
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(buildUserPrompt(req)), genConfig)
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("model returned no content")
	}

	content, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Generated post content.",
		zap.String("topic", req.Topic),
		zap.String("title", content.Title),
		zap.Int("html_len", len(content.HTML)))
	return content, nil
}

// buildUserPrompt assembles the user message from the request.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if len(req.Tags) > 0 {
		fmt.Fprintf(&b, "Suggested tags: %s\n", strings.Join(req.Tags, ", "))
	}
	if req.Reference != "" {
		fmt.Fprintf(&b, "\nReference material:\n%s\n", req.Reference)
	}
	return b.String()
}

// parsePayload decodes the model output, tolerating markdown fences the
// model sometimes adds despite instructions, and cleans the HTML.
func parsePayload(raw string) (*schemas.GeneratedContent, error) {
	stripped := stripFences(raw)

	var payload generatedPayload
	if err := json.UnmarshalFromString(stripped, &payload); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	if payload.Title == "" || payload.Content == "" {
		return nil, fmt.Errorf("model output is missing title or content")
	}

	return &schemas.GeneratedContent{
		Title:           strings.TrimSpace(payload.Title),
		HTML:            htmlutil.CleanHTML(payload.Content),
		MetaDescription: htmlutil.CleanMetaDescription(payload.MetaDescription),
	}, nil
}

// stripFences removes a surrounding ```json ... ``` block when present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
