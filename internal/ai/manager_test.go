package ai

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/pathweaver/pathweaver/internal/model"
)

type fixedGenerator struct {
	reply string
	err   error
}

func (g *fixedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type echoEmbedder struct {
	lastInput string
}

func (e *echoEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.lastInput = text
	// Deterministic vector derived from input length, enough to compare.
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *echoEmbedder) ModelName() string {
	return "test-embed"
}

func TestParseSentences(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		max   int
		want  []string
	}{
		{
			name:  "numbered lines",
			reply: "1. First sentence.\n2. Second sentence.\n3. Third sentence.",
			max:   3,
			want:  []string{"First sentence.", "Second sentence.", "Third sentence."},
		},
		{
			name:  "parenthesis and bullet markers",
			reply: "1) One.\n- Two.\n* Three.",
			max:   3,
			want:  []string{"One.", "Two.", "Three."},
		},
		{
			name:  "fewer than requested is kept",
			reply: "1. Only one came back.",
			max:   5,
			want:  []string{"Only one came back."},
		},
		{
			name:  "extra lines are capped",
			reply: "1. a\n2. b\n3. c\n4. d",
			max:   2,
			want:  []string{"a", "b"},
		},
		{
			name:  "blank lines skipped",
			reply: "\n\n1. a\n\n2. b\n",
			max:   5,
			want:  []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseSentences(tt.reply, tt.max))
		})
	}
}

func TestParseQuestionReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantQ   string
		wantA   string
		wantErr bool
	}{
		{
			name:  "canonical format",
			reply: "QUESTION: What is a binary search tree?\nANSWER: An ordered binary tree.",
			wantQ: "What is a binary search tree?",
			wantA: "An ordered binary tree.",
		},
		{
			name:  "case and whitespace drift",
			reply: "  question:   What is it? \n  Answer:  A thing.  ",
			wantQ: "What is it?",
			wantA: "A thing.",
		},
		{
			name:  "multi-line answer",
			reply: "QUESTION: Why?\nANSWER: Because of X.\nAnd also Y.",
			wantQ: "Why?",
			wantA: "Because of X.\nAnd also Y.",
		},
		{
			name:    "missing labels fails closed",
			reply:   "Here is a question about trees.",
			wantErr: true,
		},
		{
			name:    "blank answer fails closed",
			reply:   "QUESTION: Why?\nANSWER:",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, a, err := parseQuestionReply(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, IsGenerationError(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantQ, q)
			require.Equal(t, tt.wantA, a)
		})
	}
}

func TestExpandQueryCombinesSentences(t *testing.T) {
	emb := &echoEmbedder{}
	m := NewManager(
		&fixedGenerator{reply: "1. Trees are hierarchical.\n2. Balancing matters."},
		emb,
		ManagerConfig{},
	)
	expanded, err := m.ExpandQuery(context.Background(), "binary search trees", 2)
	require.NoError(t, err)
	require.Equal(t, "binary search trees", expanded.OriginalText)
	require.Len(t, expanded.GeneratedSentences, 2)
	require.Equal(t, "binary search trees Trees are hierarchical. Balancing matters.", expanded.CombinedText)
	require.Equal(t, expanded.CombinedText, emb.lastInput)
	require.NotEmpty(t, expanded.Embedding)
}

func TestExpandQueryFallsBackWhenGenerationFails(t *testing.T) {
	emb := &echoEmbedder{}
	m := NewManager(&fixedGenerator{err: ErrCircuitOpen}, emb, ManagerConfig{})

	expanded, err := m.ExpandQuery(context.Background(), "binary search trees", 5)
	require.NoError(t, err)
	require.Empty(t, expanded.GeneratedSentences)
	require.Equal(t, "binary search trees", expanded.CombinedText)

	// Fallback determinism: the embedding is exactly the raw-query
	// embedding.
	direct, err := m.Embed(context.Background(), "binary search trees", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, direct, expanded.Embedding)
}

func TestGenerateQuestion(t *testing.T) {
	chunk := &model.ContentChunk{
		ID:      "c1",
		Subject: "CS",
		Concept: "BST",
		Content: "A binary search tree keeps keys ordered.",
	}
	m := NewManager(
		&fixedGenerator{reply: "QUESTION: What property does a BST maintain?\nANSWER: Keys are kept in order."},
		&echoEmbedder{},
		ManagerConfig{},
	)
	q, err := m.GenerateQuestion(context.Background(), chunk, 3)
	require.NoError(t, err)
	require.Equal(t, "What property does a BST maintain?", q.Question)
	require.Equal(t, "Keys are kept in order.", q.ExpectedAnswer)
	require.Equal(t, 3, q.Difficulty)
}

func TestGenerateQuestionFailsClosedOnGarbage(t *testing.T) {
	chunk := &model.ContentChunk{ID: "c1", Content: "text"}
	m := NewManager(&fixedGenerator{reply: "no labels here"}, &echoEmbedder{}, ManagerConfig{})
	_, err := m.GenerateQuestion(context.Background(), chunk, 9)
	require.True(t, IsGenerationError(err))

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, "no labels here", ge.Raw)
}

func TestEmbedTruncatesOversizedInput(t *testing.T) {
	emb := &echoEmbedder{}
	m := NewManager(nil, emb, ManagerConfig{MaxInputChars: 10})
	_, err := m.Embed(context.Background(), "0123456789abcdef", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, "0123456789", emb.lastInput)
}

func TestEmbedTruncationKeepsRunesWhole(t *testing.T) {
	emb := &echoEmbedder{}
	m := NewManager(nil, emb, ManagerConfig{MaxInputChars: 9})
	// "héllo wörld" is 13 bytes; a byte cut at 9 would land inside "ö".
	_, err := m.Embed(context.Background(), "héllo wörld", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, "héllo w", emb.lastInput)
	require.True(t, utf8.ValidString(emb.lastInput))
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	m := NewManager(nil, &echoEmbedder{}, ManagerConfig{})
	_, err := m.Embed(context.Background(), "   ", "RETRIEVAL_QUERY")
	require.Error(t, err)
}
