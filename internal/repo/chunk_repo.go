package repo

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/pathweaver/pathweaver/internal/model"
	appErr "github.com/pathweaver/pathweaver/internal/pkg/errors"
)

// MaxSearchLimit caps the result count of a single similarity search.
const MaxSearchLimit = 100

type ChunkRepo struct {
	db *sql.DB
	// clientSideRank skips the pgvector index and ranks in process. The
	// ordering contract is identical either way.
	clientSideRank bool
}

func NewChunkRepo(db *sql.DB, clientSideRank bool) *ChunkRepo {
	return &ChunkRepo{db: db, clientSideRank: clientSideRank}
}

// Search returns chunks whose cosine similarity against embedding is at
// least minScore, ordered descending by score with ties broken by chunk id.
func (r *ChunkRepo) Search(ctx context.Context, embedding []float32, minScore float32, limit int) ([]model.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding: %w", appErr.ErrInvalid)
	}
	if limit <= 0 || limit > MaxSearchLimit {
		return nil, fmt.Errorf("limit must be in [1,%d]: %w", MaxSearchLimit, appErr.ErrInvalid)
	}
	var results []model.SearchResult
	var err error
	if r.clientSideRank {
		results, err = r.searchClientSide(ctx, embedding, minScore, limit)
	} else {
		results, err = r.searchIndexed(ctx, embedding, minScore, limit)
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachGraphIDs(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ChunkRepo) searchIndexed(ctx context.Context, embedding []float32, minScore float32, limit int) ([]model.SearchResult, error) {
	const query = `
		SELECT id, subject, concept, content, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		ORDER BY score DESC, id ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		chunk := &model.ContentChunk{}
		var score float32
		if err := rows.Scan(&chunk.ID, &chunk.Subject, &chunk.Concept, &chunk.Content, &score); err != nil {
			return nil, err
		}
		results = append(results, model.SearchResult{Chunk: chunk, Score: score})
	}
	return results, rows.Err()
}

func (r *ChunkRepo) searchClientSide(ctx context.Context, embedding []float32, minScore float32, limit int) ([]model.SearchResult, error) {
	const query = `SELECT id, subject, concept, content, embedding FROM chunks WHERE embedding IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		chunk := &model.ContentChunk{}
		var vec pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.Subject, &chunk.Concept, &chunk.Content, &vec); err != nil {
			return nil, err
		}
		score := CosineSimilarity(embedding, vec.Slice())
		if score < minScore {
			continue
		}
		results = append(results, model.SearchResult{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *ChunkRepo) attachGraphIDs(ctx context.Context, results []model.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, 0, len(results))
	byID := make(map[string]*model.ContentChunk, len(results))
	for i := range results {
		ids = append(ids, results[i].Chunk.ID)
		byID[results[i].Chunk.ID] = results[i].Chunk
	}
	query, args, err := sqlx.In(`SELECT chunk_id, prerequisite_id FROM chunk_prerequisites WHERE chunk_id IN (?) OR prerequisite_id IN (?)`, ids, ids)
	if err != nil {
		return err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID, prereqID string
		if err := rows.Scan(&chunkID, &prereqID); err != nil {
			return err
		}
		if chunk, ok := byID[chunkID]; ok {
			chunk.PrerequisiteIDs = append(chunk.PrerequisiteIDs, prereqID)
		}
		if chunk, ok := byID[prereqID]; ok {
			chunk.DependentIDs = append(chunk.DependentIDs, chunkID)
		}
	}
	return rows.Err()
}

// PrerequisitesOf walks stored prerequisite edges breadth-first up to
// maxDepth, returning nearest-first. The visited set plus the depth bound
// keeps the walk finite even if the stored graph contains a cycle.
func (r *ChunkRepo) PrerequisitesOf(ctx context.Context, chunkID string, maxDepth int) ([]model.ContentChunk, error) {
	if maxDepth <= 0 {
		return nil, nil
	}
	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var ordered []string
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		query, args, err := sqlx.In(`SELECT chunk_id, prerequisite_id FROM chunk_prerequisites WHERE chunk_id IN (?)`, frontier)
		if err != nil {
			return nil, err
		}
		query = sqlx.Rebind(sqlx.DOLLAR, query)
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		var next []string
		for rows.Next() {
			var from, to string
			if err := rows.Scan(&from, &to); err != nil {
				rows.Close()
				return nil, err
			}
			if visited[to] {
				continue
			}
			visited[to] = true
			ordered = append(ordered, to)
			next = append(next, to)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		frontier = next
	}
	if len(ordered) == 0 {
		return nil, nil
	}
	chunks, err := r.GetByIDs(ctx, ordered)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.ContentChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := make([]model.ContentChunk, 0, len(ordered))
	for _, id := range ordered {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// DependentsOf lists chunks that declare chunkID as a prerequisite.
func (r *ChunkRepo) DependentsOf(ctx context.Context, chunkID string) ([]model.ContentChunk, error) {
	const query = `
		SELECT c.id, c.subject, c.concept, c.content
		FROM chunk_prerequisites p
		JOIN chunks c ON c.id = p.chunk_id
		WHERE p.prerequisite_id = $1
		ORDER BY c.id
	`
	rows, err := r.db.QueryContext(ctx, query, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContentChunk
	for rows.Next() {
		var c model.ContentChunk
		if err := rows.Scan(&c.ID, &c.Subject, &c.Concept, &c.Content); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]model.ContentChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, subject, concept, content FROM chunks WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContentChunk
	for rows.Next() {
		var c model.ContentChunk
		if err := rows.Scan(&c.ID, &c.Subject, &c.Concept, &c.Content); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CosineSimilarity matches the scoring the vector index produces, up to
// floating-point tolerance.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
