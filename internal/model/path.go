package model

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

type LearningPath struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Title        string `json:"title"`
	QueryText    string `json:"query_text"`
	Difficulty   string `json:"difficulty"`
	ConceptCount int    `json:"concept_count"`
	Ctime        int64  `json:"ctime"`
}

type ConceptRecord struct {
	ID                 string  `json:"id"`
	PathID             string  `json:"path_id"`
	ChunkID            string  `json:"chunk_id"`
	SequenceOrder      int     `json:"sequence_order"`
	RelevanceScore     float32 `json:"relevance_score"`
	Question           string  `json:"question"`
	ExpectedAnswer     string  `json:"expected_answer"`
	QuestionDifficulty int     `json:"question_difficulty"`
	// QuestionPending marks concepts whose question generation failed;
	// the record is still committed and the UI shows it as pending.
	QuestionPending bool  `json:"question_pending"`
	Ctime           int64 `json:"ctime"`

	// Fields holds free-form metadata beyond the typed columns.
	Fields map[string]string `json:"fields,omitempty"`
}

type PrerequisiteEdge struct {
	ConceptID             string `json:"concept_id"`
	PrerequisiteConceptID string `json:"prerequisite_concept_id"`
}

// ConceptSummary is the shallow form used when resolving a concept's
// prerequisites for display.
type ConceptSummary struct {
	ID            string `json:"id"`
	ChunkID       string `json:"chunk_id"`
	Concept       string `json:"concept"`
	SequenceOrder int    `json:"sequence_order"`
}

type EmbeddingCache struct {
	ModelName   string
	TaskType    string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
