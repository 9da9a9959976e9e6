package gemini_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/DeafMist/policy-radar/internal/gemini"
)

type stubGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls int

	model    string
	prompt   string
	settings *genai.GenerateContentConfig
}

func (s *stubGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.calls++
	s.model = model
	s.settings = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		s.prompt = contents[0].Parts[0].Text
	}
	return s.resp, s.err
}

func textResponse(text string, chunks ...*genai.GroundingChunk) *genai.GenerateContentResponse {
	candidate := &genai.Candidate{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{{Text: text}},
		},
	}
	if chunks != nil {
		candidate.GroundingMetadata = &genai.GroundingMetadata{GroundingChunks: chunks}
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate}}
}

func TestFetchPoliciesParsesAnswer(t *testing.T) {
	gen := &stubGenerator{resp: textResponse(
		"1. 加强监管\n加强对金融市场的监管力度。\n2. 推动创新\n鼓励企业加大研发投入。",
		&genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: "https://www.gov.cn/", Title: "中国政府网"}},
		&genai.GroundingChunk{},
	)}
	client := gemini.NewWithGenerator(gen, "gemini-test", nil)

	resp, err := client.FetchPolicies(context.Background(), "2024-03-05")
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls)
	require.Equal(t, "gemini-test", gen.model)
	require.Len(t, resp.Policies, 2)
	require.Equal(t, "加强监管", resp.Policies[0].Title)
	require.Equal(t, "2024-03-05", resp.Policies[1].Date)
	require.Len(t, resp.Sources, 1)
	require.Equal(t, "中国政府网", resp.Sources[0].Title)
	require.True(t, strings.HasPrefix(resp.RawText, "1. 加强监管"))
}

func TestFetchPoliciesEnablesSearchGrounding(t *testing.T) {
	gen := &stubGenerator{resp: textResponse("")}
	client := gemini.NewWithGenerator(gen, "gemini-test", nil)

	_, err := client.FetchPolicies(context.Background(), "2024-03-05")
	require.NoError(t, err)

	require.NotNil(t, gen.settings)
	require.Len(t, gen.settings.Tools, 1)
	require.NotNil(t, gen.settings.Tools[0].GoogleSearch)
	require.Equal(t, gemini.BuildPrompt("2024-03-05"), gen.prompt)
}

func TestFetchPoliciesEmptyAnswer(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{name: "nil response", resp: nil},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}},
		{name: "empty text", resp: textResponse("")},
		{name: "no content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := gemini.NewWithGenerator(&stubGenerator{resp: tt.resp}, "gemini-test", nil)

			resp, err := client.FetchPolicies(context.Background(), "2024-03-05")
			require.NoError(t, err)
			require.Equal(t, gemini.EmptyAnswer, resp.RawText)
			require.Empty(t, resp.Policies)
			require.NotNil(t, resp.Sources)
			require.Empty(t, resp.Sources)
		})
	}
}

func TestFetchPoliciesMissingGroundingMetadata(t *testing.T) {
	resp := textResponse("* 降准通知\n中国人民银行决定下调存款准备金率。")
	client := gemini.NewWithGenerator(&stubGenerator{resp: resp}, "gemini-test", nil)

	got, err := client.FetchPolicies(context.Background(), "2024-02-05")
	require.NoError(t, err)
	require.Len(t, got.Policies, 1)
	require.Empty(t, got.Sources)
}

func TestFetchPoliciesPropagatesProviderError(t *testing.T) {
	providerErr := errors.New("429 resource exhausted")
	gen := &stubGenerator{err: providerErr}
	client := gemini.NewWithGenerator(gen, "gemini-test", nil)

	resp, err := client.FetchPolicies(context.Background(), "2024-03-05")
	require.Nil(t, resp)
	require.ErrorIs(t, err, providerErr)
	require.Equal(t, 1, gen.calls)
}

func TestNewWithoutKeyFailsOnLookup(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := gemini.New(context.Background(), gemini.Options{Model: "gemini-test"}, nil)
	_, err := client.FetchPolicies(ctx, "2024-03-05")
	require.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	prompt := gemini.BuildPrompt("2024-03-05")
	require.Contains(t, prompt, "2024-03-05")
	require.Contains(t, prompt, "政策名称")
	require.Contains(t, prompt, "发布部门")
	require.Contains(t, prompt, "政策分类")
	require.Contains(t, prompt, "国务院")
}
