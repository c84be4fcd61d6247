package kbchat

import "context"

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ChatModel streams a completion. Every content delta goes to tokens;
// the model must not close the channel.
type ChatModel interface {
	Stream(ctx context.Context, c Completion, tokens chan<- string) error
}

// Role of a conversation message.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Completion is the fully assembled prompt handed to the ChatModel.
type Completion struct {
	Model       string
	Temperature float32
	Messages    []Message
}

// IngestRequest describes a file or directory to ingest.
type IngestRequest struct {
	Path      string
	Namespace string
	// Type "directory" walks Path; empty loads a single file.
	Type string
	// Extension overrides the loader picked from Path.
	Extension    string
	ChunkSize    int // 0 uses WithChunkSize
	ChunkOverlap int
}

// ChatRequest is one question with its conversation history.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Prompt      string
	Temperature *float32
	// Namespace answers from the knowledge base ingested under it.
	Namespace string
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}
