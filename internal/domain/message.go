package domain

// Role identifies who authored a transcript message.
type Role string

// Role constants for transcript messages.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleCode      Role = "code"
)

// Valid reports whether r is one of the known transcript roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleCode:
		return true
	default:
		return false
	}
}

// Message is a single entry in a chat transcript.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// DefaultGreeting is the assistant message every new transcript starts with.
const DefaultGreeting = "**Hey there! I'm your Ai compagnon ! 👋** No need to head to CHATGPT, you can ask your questions here "

// FileURL returns the gateway path that serves the hosted file with the given id.
func FileURL(fileID string) string {
	return "/api/files/" + fileID
}
