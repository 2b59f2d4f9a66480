package model

// ContentChunk is an immutable, pre-embedded passage owned by the ingestion
// pipeline. The engine only ever reads chunks.
type ContentChunk struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Concept         string    `json:"concept"`
	Content         string    `json:"content"`
	Embedding       []float32 `json:"-"`
	PrerequisiteIDs []string  `json:"prerequisite_ids,omitempty"`
	DependentIDs    []string  `json:"dependent_ids,omitempty"`
	Ctime           int64     `json:"ctime"`
}

// SearchResult pairs a chunk with its cosine similarity against the query
// embedding, plus optional graph context resolved on demand.
type SearchResult struct {
	Chunk             *ContentChunk  `json:"chunk"`
	Score             float32        `json:"score"`
	PrerequisiteChain []ContentChunk `json:"prerequisite_chain,omitempty"`
	Dependents        []ContentChunk `json:"dependents,omitempty"`
}

// ExpandedQuery is the per-request enrichment of a raw query. Not persisted.
type ExpandedQuery struct {
	OriginalText       string
	GeneratedSentences []string
	CombinedText       string
	Embedding          []float32
}
