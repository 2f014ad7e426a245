package embeddings

import "context"

// TaskType represents the type of embedding task for Vertex AI
type TaskType string

const (
	TaskTypeQuery    TaskType = "RETRIEVAL_QUERY"
	TaskTypeDocument TaskType = "RETRIEVAL_DOCUMENT"
)

// Embedder defines the interface for text embedding operations
type Embedder interface {
	// Embed generates an embedding for a single text with the given task type
	Embed(ctx context.Context, text string, taskType TaskType) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts with the given task type
	EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error)
}

// Config selects and configures an embedding backend
type Config struct {
	Provider   string // "vertex", "custom" or "hash"
	ServiceURL string // custom provider base URL
	Dimensions int    // requested output size; required for "hash"
	CacheSize  int    // query embedding LRU entries, 0 disables

	// Vertex AI (Provider = "vertex")
	GCPProjectID string
	GCPLocation  string
	VertexModel  string
}
