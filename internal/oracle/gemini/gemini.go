// Package gemini implements intent.Oracle on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"tally/internal/intent"
)

const DefaultModelName = "gemini-2.5-flash"

// generator is the slice of *genai.Models the oracle uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey string
	Model  string
}

type Oracle struct {
	models generator
	model  string
}

var _ intent.Oracle = (*Oracle)(nil)

// New creates a Gemini-backed oracle. An empty APIKey lets the SDK fall back
// to GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func New(ctx context.Context, cfg Config) (*Oracle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithGenerator(client.Models, cfg.Model), nil
}

func newWithGenerator(g generator, model string) *Oracle {
	if model == "" {
		model = DefaultModelName
	}
	return &Oracle{models: g, model: model}
}

// Resolve implements intent.Oracle. Transport errors map to
// intent.ErrOracleUnavailable, unusable output to intent.ErrMalformedResponse.
func (o *Oracle) Resolve(ctx context.Context, p intent.Prompt) (intent.OracleResponse, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.Instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}
	contents := []*genai.Content{genai.NewContentFromText(p.Message, genai.RoleUser)}

	resp, err := o.models.GenerateContent(ctx, o.model, contents, config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return intent.OracleResponse{}, fmt.Errorf("%w: %w", intent.ErrOracleUnavailable, err)
		}
		return intent.OracleResponse{}, fmt.Errorf("%w: generate content: %v", intent.ErrOracleUnavailable, err)
	}
	if resp == nil {
		return intent.OracleResponse{}, fmt.Errorf("%w: nil response from model", intent.ErrMalformedResponse)
	}

	rawText := resp.Text()
	if rawText == "" {
		return intent.OracleResponse{}, fmt.Errorf("%w: empty response from model", intent.ErrMalformedResponse)
	}

	// Clean up Markdown fences / extra text if the model ignored instructions.
	out, err := intent.DecodeResponse(cleanModelJSON(rawText))
	if err != nil {
		return intent.OracleResponse{}, fmt.Errorf("%w\nraw response: %s", err, rawText)
	}
	return out, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost object if there is still prose around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
