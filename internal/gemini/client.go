package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/DeafMist/policy-radar/internal/models"
	"github.com/DeafMist/policy-radar/internal/processing"
)

// EmptyAnswer replaces a missing answer text so the parser still sees a string.
const EmptyAnswer = "未能获取政策信息。"

// Generator is the slice of *genai.Models the client needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures the provider connection.
type Options struct {
	APIKey string
	Model  string
	// Timeout bounds each HTTP round trip to the provider. Zero means no limit.
	Timeout time.Duration
}

// Client wraps the genai SDK with the policy lookup this project needs.
type Client struct {
	models  Generator
	model   string
	log     *slog.Logger
	initErr error
}

// New builds a Gemini client with Google Search grounding. A client the SDK
// refuses to construct (for instance without an API key) is not fatal here:
// the error is returned from every FetchPolicies call instead.
func New(ctx context.Context, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{model: opts.Model, log: logger}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	})
	if err != nil {
		c.initErr = fmt.Errorf("create genai client: %w", err)
		logger.Warn("gemini client unavailable, lookups will fail", slog.Any("err", err))
		return c
	}

	c.models = client.Models
	return c
}

// NewWithGenerator builds a client around an existing generator.
func NewWithGenerator(gen Generator, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{models: gen, model: model, log: logger}
}

// FetchPolicies asks the model for policy announcements around date and
// parses the grounded answer. Provider failures are returned as is, wrapped.
func (c *Client) FetchPolicies(ctx context.Context, date string) (*models.SearchResponse, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(BuildPrompt(date)), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := answerText(resp)
	if text == "" {
		text = EmptyAnswer
	}
	chunks := groundingChunks(resp)

	result := processing.ParseResponse(date, text, chunks)
	c.log.Debug("policies fetched",
		slog.String("date", date),
		slog.Int("policies", len(result.Policies)),
		slog.Int("sources", len(result.Sources)),
		slog.Duration("took", time.Since(start)),
	)
	return result, nil
}

func answerText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	if candidate := resp.Candidates[0]; candidate == nil || candidate.Content == nil {
		return ""
	}
	return resp.Text()
}

// groundingChunks tolerates absence at every level of the response.
func groundingChunks(resp *genai.GenerateContentResponse) []*genai.GroundingChunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.GroundingMetadata == nil {
		return nil
	}
	return candidate.GroundingMetadata.GroundingChunks
}
