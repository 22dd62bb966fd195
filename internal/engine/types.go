package engine

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system message with the given content.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message with the given content.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message with the given content.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
