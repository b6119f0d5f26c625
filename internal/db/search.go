package db

// KNNQuery is the input for vector similarity search.
// Tags restricts candidates to exact TAG matches before the KNN pass.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Tags         map[string]string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Score is cosine similarity for KNN hits.
type SearchEntry struct {
	Key      string
	Score    float64
	Distance float64
	Fields   map[string]string
}
