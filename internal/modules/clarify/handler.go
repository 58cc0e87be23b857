// Package clarify runs the clarification sub-dialogue: generating
// questions for ambiguous queries and interpreting the user's answers.
package clarify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"mapchat/internal/ai"
	"mapchat/internal/modules/intent"
)

const agentPrompt = `You are a clarification agent. Your job is to help resolve ambiguities in user queries.

When a query is ambiguous or missing information:
1. Identify what information is missing or ambiguous
2. Ask a clear, specific question to resolve the ambiguity
3. Provide options if applicable (e.g., for ambiguous location names)

Be conversational but concise. Focus on getting the specific information needed to proceed.`

// Handler interprets clarification answers with the LLM.
type Handler struct {
	llm ai.Provider
}

func NewHandler(llm ai.Provider) *Handler {
	return &Handler{llm: llm}
}

// Process routes the user's answer to the branch for the pending topic.
// It never returns an error: LLM trouble becomes a failed Result whose
// message re-prompts the user.
func (h *Handler) Process(ctx context.Context, query string, cc Context) Result {
	switch cc.Topic {
	case TopicOrigin, TopicDestination, TopicWaypoint:
		return h.handleLocation(ctx, query, cc)
	case TopicWaypointRemoval:
		return h.handleWaypointRemoval(ctx, query, cc)
	case TopicMissingRoute:
		return h.handleMissingRoute(ctx, query)
	default:
		return h.handleGeneric(ctx, query, cc)
	}
}

// GenerateQuestion produces the question to ask when a classification
// needs clarification. The classifier's own question wins when present.
func (h *Handler) GenerateQuestion(ctx context.Context, cls intent.Classification, rc intent.RouteContext) string {
	if cls.RequiresClarification && cls.ClarificationQuestion != "" {
		return cls.ClarificationQuestion
	}

	params, _ := json.Marshal(cls.Parameters)
	userPrompt := fmt.Sprintf(`I need to ask for clarification about a user query.

Intent: %s
Parameters: %s
Confidence: %.2f

What's a good clarification question to ask the user?`, cls.Intent, params, cls.Confidence)

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: promptWithRoute(rc)},
		{Role: ai.RoleUser, Content: userPrompt},
	}
	reply, err := h.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: 0.7})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("[clarify] question generation failed: %v", err)
		}
		return "I need more information to help you. Could you please provide more details?"
	}
	return strings.TrimSpace(reply)
}

func (h *Handler) handleLocation(ctx context.Context, query string, cc Context) Result {
	userPrompt := fmt.Sprintf(`The user is providing clarification about a location.

Original location: %s
User's clarification: %s

What location is the user referring to? Reply with the location name only.`, cc.OriginalValue, query)

	content, err := h.chat(ctx, userPrompt, 0.2)
	if err != nil {
		log.Printf("[clarify] location clarification failed: %v", err)
		return Result{
			Success: false,
			Message: "I'm still having trouble understanding the location. Could you please try again with a different location name?",
		}
	}

	location := strings.TrimSpace(content)
	return Result{
		Success:        true,
		ClarifiedValue: location,
		Message:        fmt.Sprintf("Thank you for clarifying. I'll use '%s' as the location.", location),
	}
}

func (h *Handler) handleWaypointRemoval(ctx context.Context, query string, cc Context) Result {
	userPrompt := fmt.Sprintf(`The user is providing clarification about which waypoint to remove.

Available waypoints: %s
User's clarification: %s

Which waypoint is the user referring to? Reply with the waypoint name only.`, strings.Join(cc.Waypoints, ", "), query)

	content, err := h.chat(ctx, userPrompt, 0.2)
	if err != nil {
		log.Printf("[clarify] waypoint removal clarification failed: %v", err)
		return Result{
			Success: false,
			Message: "I'm still having trouble understanding which waypoint to remove. Could you please try again?",
		}
	}

	candidate := strings.TrimSpace(content)
	if matched, ok := matchWaypoint(candidate, cc.Waypoints); ok {
		return Result{
			Success:        true,
			ClarifiedValue: matched,
			Message:        fmt.Sprintf("Thank you for clarifying. I'll remove the waypoint '%s'.", matched),
		}
	}

	return Result{
		Success: false,
		Message: fmt.Sprintf("I couldn't find a waypoint matching '%s'. Available waypoints are: %s. Which one would you like to remove?",
			candidate, strings.Join(cc.Waypoints, ", ")),
	}
}

// matchWaypoint resolves a candidate against the known waypoint names:
// exact match first, then case-insensitive substring in either direction,
// first match in list order winning.
func matchWaypoint(candidate string, options []string) (string, bool) {
	for _, opt := range options {
		if candidate == opt {
			return opt, true
		}
	}
	lower := strings.ToLower(candidate)
	if lower == "" {
		return "", false
	}
	for _, opt := range options {
		optLower := strings.ToLower(opt)
		if strings.Contains(optLower, lower) || strings.Contains(lower, optLower) {
			return opt, true
		}
	}
	return "", false
}

func (h *Handler) handleMissingRoute(ctx context.Context, query string) Result {
	userPrompt := fmt.Sprintf(`The user needs to create a route before performing the requested action.

User's response: %s

Does the user want to create a route? If so, extract the origin and destination from their response.
Answer starting with "yes" or "no", and when present include lines "Origin: <name>" and "Destination: <name>".`, query)

	content, err := h.chat(ctx, userPrompt, 0.2)
	if err != nil {
		log.Printf("[clarify] missing route clarification failed: %v", err)
		return Result{
			Success: false,
			Message: "I'm having trouble understanding your response. Would you like to create a route now?",
		}
	}

	lower := strings.ToLower(content)
	if !strings.Contains(lower, "yes") && !strings.Contains(lower, "origin") && !strings.Contains(lower, "destination") {
		return Result{
			Success:    true,
			WantsRoute: false,
			Message:    "No problem. Let me know if you'd like to create a route later.",
		}
	}

	origin, destination := extractEndpoints(content)
	if origin != "" && destination != "" {
		return Result{
			Success:     true,
			WantsRoute:  true,
			Origin:      origin,
			Destination: destination,
			Message:     fmt.Sprintf("I'll create a route from %s to %s.", origin, destination),
		}
	}
	return Result{
		Success:    true,
		WantsRoute: true,
		Message:    "I'd be happy to create a route for you. Could you please tell me the origin and destination?",
	}
}

// extractEndpoints pulls "Origin: X" and "Destination: Y" values out of a
// model reply, tolerating arbitrary surrounding prose.
func extractEndpoints(content string) (string, string) {
	lower := strings.ToLower(content)
	originAt := strings.Index(lower, "origin")
	destAt := strings.Index(lower, "destination")
	if originAt < 0 || destAt < 0 || destAt <= originAt {
		return "", ""
	}

	origin := cleanEndpoint(content[originAt+len("origin") : destAt])
	destination := cleanEndpoint(content[destAt+len("destination"):])
	return origin, destination
}

func cleanEndpoint(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":-= ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (h *Handler) handleGeneric(ctx context.Context, query string, cc Context) Result {
	userPrompt := fmt.Sprintf(`The user is providing clarification about: %s

User's clarification: %s

How should I interpret the user's clarification? What's the key information they're providing?`, cc.Topic, query)

	if _, err := h.chat(ctx, userPrompt, 0.7); err != nil {
		log.Printf("[clarify] generic clarification failed: %v", err)
		return Result{
			Success: false,
			Message: "I'm still having trouble understanding. Could you please try again with a clearer explanation?",
		}
	}

	return Result{
		Success:        true,
		ClarifiedValue: query,
		Message:        "Thank you for the clarification. I'll use that information to help you.",
	}
}

func (h *Handler) chat(ctx context.Context, userPrompt string, temperature float32) (string, error) {
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: agentPrompt},
		{Role: ai.RoleUser, Content: userPrompt},
	}
	return h.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: temperature})
}

func promptWithRoute(rc intent.RouteContext) string {
	if !rc.HasActiveRoute {
		return agentPrompt
	}
	var b strings.Builder
	b.WriteString(agentPrompt)
	b.WriteString("\n\nCurrent route information:\n")
	fmt.Fprintf(&b, "- Origin: %s\n", rc.Origin)
	fmt.Fprintf(&b, "- Destination: %s\n", rc.Destination)
	if len(rc.Waypoints) > 0 {
		b.WriteString("- Waypoints:\n")
		for i, wp := range rc.Waypoints {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, wp)
		}
	}
	return b.String()
}
