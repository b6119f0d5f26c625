package kira

// ProviderSettings configures one LLM vendor. Blank model and URL fields take
// the built-in defaults for known providers.
type ProviderSettings struct {
	APIKey            string
	BaseURL           string
	GenerationModel   string
	EmbeddingModel    string
	FallbackModels    []string
	Dimensions        int
	RequestsPerSecond float64
}

// EmbeddingResult is a vector and the provider that produced it.
type EmbeddingResult struct {
	Embedding []float32
	Provider  string
	Model     string
}

// GenerationResult is generated text and the provider that produced it.
type GenerationResult struct {
	Text     string
	Provider string
	Model    string
}

// Record is a source document to rank, usually one gazette notification.
type Record struct {
	ID      string
	Subject string
	Text    string
}

// Chunk is a ranked window of a Record. Start and End are byte offsets into Record.Text.
type Chunk struct {
	SourceID string
	Subject  string
	Content  string
	Start    int
	End      int
	Score    float64
}
