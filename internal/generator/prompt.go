package generator

import (
	"fmt"
	"strings"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
)

const personaPreamble = `You are a long-time Reddit user writing a single comment on a thread. You write like a real person: lowercase is fine, contractions are fine, no corporate tone, no emoji spam, no sign-offs. You never sound like marketing copy.`

// buildPrompt assembles the generation prompt from brand voice, thread
// context, and the chosen approach. Every brand attribute is optional;
// missing ones fall back to a sensible default line.
func buildPrompt(post *database.DiscoveredPost, brand *database.BrandConfig, settings *database.RedditSettings, approach Approach, isPromotional bool) string {
	var b strings.Builder

	b.WriteString(personaPreamble)
	b.WriteString("\n\n")

	b.WriteString("Voice:\n")
	b.WriteString(voiceSection(brand))
	b.WriteString("\n")

	if settings.CustomInstructions != nil && *settings.CustomInstructions != "" {
		b.WriteString("Extra instructions from the brand team:\n")
		b.WriteString(*settings.CustomInstructions)
		b.WriteString("\n\n")
	}

	b.WriteString("Thread you are replying to:\n")
	fmt.Fprintf(&b, "Subreddit: r/%s\n", post.Subreddit)
	fmt.Fprintf(&b, "Title: %s\n", post.Title)
	if post.Snippet != nil && *post.Snippet != "" {
		fmt.Fprintf(&b, "Preview: %s\n", *post.Snippet)
	}
	if post.Content != nil && *post.Content != "" {
		content := *post.Content
		if len(content) > 4000 {
			content = content[:4000] + "..."
		}
		fmt.Fprintf(&b, "Full thread text:\n%s\n", content)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Approach for this comment (%s): %s\n\n", approach.Name, approach.Instruction)

	if isPromotional {
		b.WriteString(promotionalSection(brand))
	} else {
		b.WriteString("Do not mention any brand, product, or company. This is a purely organic comment.\n")
	}

	b.WriteString("\nWrite only the comment text. No preamble, no quotes around it.")
	return b.String()
}

// voiceSection renders brand-voice attributes with per-attribute fallbacks.
func voiceSection(brand *database.BrandConfig) string {
	var lines []string

	if brand.Tone != nil && *brand.Tone != "" {
		lines = append(lines, "- Tone: "+*brand.Tone)
	} else {
		lines = append(lines, "- Tone: casual and helpful")
	}
	if brand.Formality != nil && *brand.Formality != "" {
		lines = append(lines, "- Formality: "+*brand.Formality)
	}
	if len(brand.PreferredVocabulary) > 0 {
		lines = append(lines, "- Words that fit the voice: "+strings.Join(brand.PreferredVocabulary, ", "))
	}
	if len(brand.BannedVocabulary) > 0 {
		lines = append(lines, "- Never use these words: "+strings.Join(brand.BannedVocabulary, ", "))
	}
	if len(brand.SignaturePhrases) > 0 {
		lines = append(lines, "- Phrasing that sounds like the brand: "+strings.Join(brand.SignaturePhrases, "; "))
	}

	return strings.Join(lines, "\n") + "\n"
}

// promotionalSection instructs exactly-once, casual brand mention.
func promotionalSection(brand *database.BrandConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand to mention: %s\n", brand.BrandName)
	if brand.Description != nil && *brand.Description != "" {
		fmt.Fprintf(&b, "What it is: %s\n", *brand.Description)
	}
	if brand.USP != nil && *brand.USP != "" {
		fmt.Fprintf(&b, "What makes it different: %s\n", *brand.USP)
	}
	fmt.Fprintf(&b, `Mention %s exactly once, casually, the way a real user would. Use a phrasing like "I've been using %s", "ended up going with %s", or "%s worked for me". Never use promotional language, superlatives, or links. If the mention would feel forced in this thread, keep it to half a sentence.
`, brand.BrandName, brand.BrandName, brand.BrandName, brand.BrandName)
	return b.String()
}
