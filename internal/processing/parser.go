package processing

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/DeafMist/policy-radar/internal/models"
)

// FallbackID identifies the single synthesized item produced when the answer
// has no recognizable title lines.
const FallbackID = "main-content"

// fallbackMinLength is the trimmed answer length, in characters, above which
// an unstructured answer is still shown as one overview item.
const fallbackMinLength = 50

// titleLine matches "1. ", "2) ", "* " and "• " style prefixes. The trailing
// class is the ECMAScript \s set so full-width spaces count as separators.
var titleLine = regexp.MustCompile(`^(?:\d+\.|[*•]|\d\))[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]`)

// ParseResponse turns a generated answer and its grounding chunks into
// structured policies and citations. It never fails.
func ParseResponse(date, rawText string, chunks []*genai.GroundingChunk) *models.SearchResponse {
	return &models.SearchResponse{
		Policies: ParsePolicies(date, rawText),
		Sources:  ExtractSources(chunks),
		RawText:  rawText,
	}
}

// ParsePolicies segments rawText into policy items. Every title line opens a
// new item and the non-blank lines after it become its summary.
func ParsePolicies(date, rawText string) []models.PolicyItem {
	policies := make([]models.PolicyItem, 0)
	var current *models.PolicyItem

	for _, line := range strings.Split(rawText, "\n") {
		trimmed := trimSpace(line)
		if trimmed == "" {
			continue
		}

		if loc := titleLine.FindStringIndex(trimmed); loc != nil {
			if current != nil && current.Title != "" {
				policies = append(policies, *current)
			}
			current = &models.PolicyItem{
				ID:    uuid.NewString(),
				Title: trimSpace(trimmed[loc[1]:]),
				Date:  date,
			}
			continue
		}

		// Prose ahead of the first title has nothing to attach to.
		if current == nil || current.Title == "" {
			continue
		}
		if current.Summary != "" {
			current.Summary += " "
		}
		current.Summary += trimmed
	}

	if current != nil && current.Title != "" {
		policies = append(policies, *current)
	}

	if len(policies) == 0 && utf8.RuneCountInString(trimSpace(rawText)) > fallbackMinLength {
		policies = append(policies, models.PolicyItem{
			ID:      FallbackID,
			Title:   FallbackTitle(date),
			Summary: rawText,
			Date:    date,
		})
	}

	return policies
}

// FallbackTitle is the title of the overview item for date.
func FallbackTitle(date string) string {
	return date + " 政策动态概览"
}

// ExtractSources keeps every chunk that carries a web URI, in provider order.
// Duplicates are intentionally left in place.
func ExtractSources(chunks []*genai.GroundingChunk) []models.GroundingSource {
	sources := make([]models.GroundingSource, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		sources = append(sources, models.GroundingSource{Title: title, URI: chunk.Web.URI})
	}
	return sources
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
