// README: Interactive demo; classifies typed queries against the live
// LLM backend without needing the maps or map-data services.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"mapchat/internal/ai"
	"mapchat/internal/modules/intent"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	ctx := context.Background()
	provider, err := ai.NewGeminiProvider(ctx, apiKey)
	if err != nil {
		log.Fatalf("Failed to initialize AI provider: %v", err)
	}
	defer provider.Close()

	classifier := intent.NewClassifier(provider)

	fmt.Println("Type a trip planning query (ctrl-d to quit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := scanner.Text()
		if query == "" {
			continue
		}

		cls := classifier.Classify(ctx, query, intent.RouteContext{})
		fmt.Printf("Intent: %s (confidence %.2f)\n", cls.Intent, cls.Confidence)
		if cls.Parameters.Origin != "" || cls.Parameters.Destination != "" {
			fmt.Printf("Route: %s -> %s\n", cls.Parameters.Origin, cls.Parameters.Destination)
		}
		if len(cls.Parameters.Waypoints) > 0 {
			fmt.Printf("Waypoints: %v\n", cls.Parameters.Waypoints)
		}
		if cls.Parameters.Waypoint != "" {
			fmt.Printf("Waypoint: %s\n", cls.Parameters.Waypoint)
		}
		if cls.RequiresClarification {
			fmt.Printf("Clarification needed: %s\n", cls.ClarificationQuestion)
		}
	}
}
