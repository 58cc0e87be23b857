// Package intent classifies user queries into dialogue intents and
// extracts their parameters with an LLM.
package intent

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"mapchat/internal/ai"
)

// Classifier turns free-text queries into Classifications.
type Classifier struct {
	llm ai.Provider
}

func NewClassifier(llm ai.Provider) *Classifier {
	return &Classifier{llm: llm}
}

// Classify never fails: any model or parse trouble degrades to an UNKNOWN
// classification that asks the user to rephrase. Only the current query is
// sent; history tends to confuse the classifier.
func (c *Classifier) Classify(ctx context.Context, query string, rc RouteContext) Classification {
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: buildSystemPrompt(rc)},
		{Role: ai.RoleUser, Content: query},
	}

	content, err := c.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: 0.2, JSONResponse: true})
	if err != nil {
		log.Printf("[intent] classification call failed: %v", err)
		cls := fallbackClassification("I encountered an error processing your request. Could you please try again?")
		cls.OriginalQuery = query
		return cls
	}

	cls := parseClassification(content)
	cls.OriginalQuery = query
	return cls
}

// parseClassification pulls the first JSON object out of the reply; models
// sometimes wrap it in markdown fences or prose.
func parseClassification(content string) Classification {
	content = stripFences(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return fallbackClassification("I'm not sure what you're asking. Could you please rephrase your question?")
	}

	var cls Classification
	if err := json.Unmarshal([]byte(content[start:end+1]), &cls); err != nil {
		return fallbackClassification("I'm having trouble understanding your request. Could you please rephrase it?")
	}
	if cls.Intent == "" {
		cls.Intent = Unknown
	}
	return cls
}

func fallbackClassification(question string) Classification {
	return Classification{
		Intent:                Unknown,
		Confidence:            0,
		RequiresClarification: true,
		ClarificationQuestion: question,
	}
}

// stripFences removes markdown code blocks if present (e.g. ```json ... ```).
func stripFences(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
