package chat

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
)

// Role of a conversation message.
type Role string

const (
	// RoleSystem carries instructions.
	RoleSystem Role = "system"
	// RoleUser is the human side.
	RoleUser Role = "user"
	// RoleAssistant is the model side.
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is an incoming chat request.
type Request struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Prompt      string         `json:"prompt"`
	Temperature *float32       `json:"temperature,omitempty"`
	Knowledge   *knowledge.Ref `json:"knowledge,omitempty"`
}

// Question returns the content of the last message.
func (r Request) Question() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	if strings.TrimSpace(r.Question()) == "" {
		return fmt.Errorf("last message must not be empty")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be within [0, 2]")
	}
	return nil
}

// Completion is a fully assembled model call.
type Completion struct {
	Model       string
	Temperature float32
	Messages    []Message
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

// Page is the visible text of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}
