package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pathweaver/pathweaver/internal/model"
	appErr "github.com/pathweaver/pathweaver/internal/pkg/errors"
	"github.com/pathweaver/pathweaver/internal/repo"
	"github.com/pathweaver/pathweaver/test/testutil"
)

func newPath(id string) *model.LearningPath {
	return &model.LearningPath{
		ID:         id,
		OwnerID:    "owner-1",
		Title:      "t",
		QueryText:  "q",
		Difficulty: model.DifficultyIntermediate,
		Ctime:      time.Now().Unix(),
	}
}

func TestPathRepoCreateAndRead(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	paths := repo.NewPathRepo(conn)

	concepts := []repo.ConceptInput{
		{ID: "c0", ChunkID: "ch0", SequenceOrder: 0, RelevanceScore: 0.91, Question: "q0", ExpectedAnswer: "a0", QuestionDifficulty: 3, Fields: map[string]string{"concept": "zero"}},
		{ID: "c1", ChunkID: "ch1", SequenceOrder: 1, RelevanceScore: 0.84, QuestionPending: true},
		{ID: "c2", ChunkID: "ch2", SequenceOrder: 2, RelevanceScore: 0.72, Question: "q2", ExpectedAnswer: "a2", QuestionDifficulty: 3, PrereqChunkIDs: []string{"ch0", "outside"}},
	}
	edges, err := paths.CreatePathTx(context.Background(), newPath("p1"), concepts)
	require.NoError(t, err)
	// The prerequisite pointing outside the result set is dropped.
	require.Equal(t, 1, edges)

	path, err := paths.GetPath(context.Background(), "owner-1", "p1")
	require.NoError(t, err)
	require.Equal(t, 3, path.ConceptCount)

	_, err = paths.GetPath(context.Background(), "owner-2", "p1")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	got, err := paths.ListConcepts(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		require.Equal(t, i, c.SequenceOrder)
	}
	require.Equal(t, "zero", got[0].Fields["concept"])
	require.True(t, got[1].QuestionPending)

	concept, prereqs, err := paths.GetConcept(context.Background(), "owner-1", "c2")
	require.NoError(t, err)
	require.Equal(t, "q2", concept.Question)
	require.Len(t, prereqs, 1)
	require.Equal(t, "c0", prereqs[0].ID)

	count, err := paths.CountEdges(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPathRepoRejectsEmptyConceptSet(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	paths := repo.NewPathRepo(conn)

	_, err := paths.CreatePathTx(context.Background(), newPath("p1"), nil)
	require.ErrorIs(t, err, appErr.ErrEmptyResult)
}

func TestPathRepoSkipsSelfLoopAndCycle(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	paths := repo.NewPathRepo(conn)

	// Chunk a requires b, chunk b requires a: only the first edge may
	// land, the second would close a cycle.
	concepts := []repo.ConceptInput{
		{ID: "ca", ChunkID: "a", SequenceOrder: 0, PrereqChunkIDs: []string{"b", "a"}},
		{ID: "cb", ChunkID: "b", SequenceOrder: 1, PrereqChunkIDs: []string{"a"}},
	}
	edges, err := paths.CreatePathTx(context.Background(), newPath("p1"), concepts)
	require.NoError(t, err)
	require.Equal(t, 1, edges)

	path, err := paths.GetPath(context.Background(), "owner-1", "p1")
	require.NoError(t, err)
	require.Equal(t, 2, path.ConceptCount)
}

func TestPathRepoAllOrNothingRollback(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	paths := repo.NewPathRepo(conn)

	// Duplicate concept id forces a persistence error mid-transaction.
	concepts := []repo.ConceptInput{
		{ID: "dup", ChunkID: "a", SequenceOrder: 0},
		{ID: "dup", ChunkID: "b", SequenceOrder: 1},
	}
	_, err := paths.CreatePathTx(context.Background(), newPath("p1"), concepts)
	require.ErrorIs(t, err, appErr.ErrPersistence)

	// Nothing from the attempt is visible.
	_, err = paths.GetPath(context.Background(), "owner-1", "p1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM concepts`).Scan(&n))
	require.Equal(t, 0, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM concept_edges`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestPathRepoDeleteCascades(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	paths := repo.NewPathRepo(conn)

	concepts := []repo.ConceptInput{
		{ID: "c0", ChunkID: "a", SequenceOrder: 0, Fields: map[string]string{"k": "v"}},
		{ID: "c1", ChunkID: "b", SequenceOrder: 1, PrereqChunkIDs: []string{"a"}},
	}
	_, err := paths.CreatePathTx(context.Background(), newPath("p1"), concepts)
	require.NoError(t, err)

	require.ErrorIs(t, paths.DeletePath(context.Background(), "owner-2", "p1"), appErr.ErrNotFound)
	require.NoError(t, paths.DeletePath(context.Background(), "owner-1", "p1"))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM concepts`).Scan(&n))
	require.Equal(t, 0, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM concept_fields`).Scan(&n))
	require.Equal(t, 0, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM concept_edges`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestEmbeddingCacheRepoRoundTripAndCleanup(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	cache := repo.NewEmbeddingCacheRepo(conn)

	emb := make([]float32, 1536)
	emb[0] = 0.5
	require.NoError(t, cache.Save(context.Background(), &model.EmbeddingCache{
		ModelName:   "m",
		TaskType:    "RETRIEVAL_QUERY",
		ContentHash: "h1",
		Embedding:   emb,
		Ctime:       100,
	}))

	got, ok, err := cache.Get(context.Background(), "m", "RETRIEVAL_QUERY", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 0.5, got[0], 1e-6)

	_, ok, err = cache.Get(context.Background(), "m", "RETRIEVAL_QUERY", "h2")
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := cache.DeleteBefore(context.Background(), 200)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
