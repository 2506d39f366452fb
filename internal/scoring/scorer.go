package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/llm"
)

const scoringPrompt = `You are evaluating whether a Reddit thread is a good place for a brand to join the conversation.

The brand's target keywords:
%s

Thread:
Subreddit: r/%s
Title: %s
Preview: %s

Score how relevant this thread is to the keywords and how natural it would be to reply. A question from someone actively looking for recommendations scores high; memes, rants, and stale announcements score low.

Respond with ONLY this JSON:
{
    "relevance_score": 0.0-1.0,
    "intent": "question" | "recommendation_request" | "complaint" | "discussion" | "showcase" | "other",
    "intent_categories": ["category 1", "category 2"],
    "matched_keywords": ["keyword that applies"],
    "evaluation": "One sentence explaining the score"
}`

// Decision thresholds for mapping a score to a filter status.
const (
	relevantThreshold = 0.6
	lowThreshold      = 0.3
)

// Result is the relevance classifier's output for one post.
type Result struct {
	Score           float64
	Intent          *string
	Categories      []string
	MatchedKeywords []string
	Evaluation      *string
	FilterStatus    string
}

// Scorer is the relevance-classification boundary. Discovery treats it as an
// external collaborator: it only depends on this contract.
type Scorer interface {
	Score(ctx context.Context, post *database.DiscoveredPost, keywords []string) (*Result, error)
}

// LLMScorer classifies thread relevance with a generative model.
type LLMScorer struct {
	provider llm.Provider
}

// NewLLMScorer creates a scorer backed by the given provider.
func NewLLMScorer(provider llm.Provider) *LLMScorer {
	return &LLMScorer{provider: provider}
}

// Score evaluates a single post. An unparseable model response degrades to a
// pending verdict rather than an error, so discovery keeps moving.
func (s *LLMScorer) Score(ctx context.Context, post *database.DiscoveredPost, keywords []string) (*Result, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for scoring")
	}

	snippet := ""
	if post.Snippet != nil {
		snippet = *post.Snippet
	}
	if len(snippet) > 2000 {
		snippet = snippet[:2000] + "..."
	}

	prompt := fmt.Sprintf(scoringPrompt, formatKeywords(keywords), post.Subreddit, post.Title, snippet)

	responseText, err := s.provider.Generate(ctx, prompt, 512, 0.2)
	if err != nil {
		return nil, err
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		note := "classifier response could not be parsed"
		return &Result{FilterStatus: database.FilterPending, Evaluation: &note}, nil
	}

	score := getFloat(parsed, "relevance_score", 0)
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	result := &Result{
		Score:           score,
		Categories:      getStrings(parsed, "intent_categories"),
		MatchedKeywords: getStrings(parsed, "matched_keywords"),
		FilterStatus:    StatusForScore(score),
	}
	if intent := getString(parsed, "intent", ""); intent != "" {
		result.Intent = &intent
	}
	if eval := getString(parsed, "evaluation", ""); eval != "" {
		result.Evaluation = &eval
	}
	return result, nil
}

// StatusForScore applies the decision thresholds to a relevance score.
func StatusForScore(score float64) string {
	switch {
	case score >= relevantThreshold:
		return database.FilterRelevant
	case score < lowThreshold:
		return database.FilterLowRelevance
	default:
		return database.FilterPending
	}
}

func formatKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "None defined"
	}
	var lines []string
	for _, k := range keywords {
		lines = append(lines, "- "+k)
	}
	return strings.Join(lines, "\n")
}

func getString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func getStrings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var items []string
	for _, item := range arr {
		if s, ok := item.(string); ok {
			items = append(items, s)
		}
	}
	return items
}

func getFloat(m map[string]any, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	}
	return fallback
}
