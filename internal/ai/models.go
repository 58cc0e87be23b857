package ai

// Message roles follow the usual chat conventions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune a single model call.
type ChatOptions struct {
	// Temperature controls randomness. Zero means the backend default.
	Temperature float32

	// JSONResponse asks the model for a JSON object reply where the
	// backend supports forcing it.
	JSONResponse bool
}
