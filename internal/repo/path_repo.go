package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pathweaver/pathweaver/internal/model"
	"github.com/pathweaver/pathweaver/internal/pkg/dbutil"
	appErr "github.com/pathweaver/pathweaver/internal/pkg/errors"
)

type PathRepo struct {
	db *sql.DB
}

func NewPathRepo(db *sql.DB) *PathRepo {
	return &PathRepo{db: db}
}

// ConceptInput is one fully-prepared concept row. Question generation has
// already happened (or failed and been flagged) before the transaction opens.
type ConceptInput struct {
	ID                 string
	ChunkID            string
	SequenceOrder      int
	RelevanceScore     float32
	Question           string
	ExpectedAnswer     string
	QuestionDifficulty int
	QuestionPending    bool
	Fields             map[string]string
	// PrereqChunkIDs are the chunk-level prerequisites; only those that
	// resolve to another concept in the same path become edges.
	PrereqChunkIDs []string
}

// CreatePathTx writes the path, its concepts, their custom fields and the
// prerequisite edges as one transaction. Any error rolls the whole thing
// back; no partially-written path is ever visible. Returns the number of
// edges actually inserted (self-loops and would-be cycles are skipped, not
// fatal).
func (r *PathRepo) CreatePathTx(ctx context.Context, path *model.LearningPath, concepts []ConceptInput) (int, error) {
	if len(concepts) == 0 {
		return 0, appErr.ErrEmptyResult
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", appErr.ErrPersistence, err)
	}
	edgeCount, err := r.createPathInTx(ctx, tx, path, concepts)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logutil.GetLogger(ctx).Error("rollback failed", zap.Error(rbErr))
		}
		return 0, fmt.Errorf("%w: %v", appErr.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", appErr.ErrPersistence, err)
	}
	return edgeCount, nil
}

func (r *PathRepo) createPathInTx(ctx context.Context, tx *sql.Tx, path *model.LearningPath, concepts []ConceptInput) (int, error) {
	path.ConceptCount = len(concepts)
	row := map[string]interface{}{
		"id":            path.ID,
		"owner_id":      path.OwnerID,
		"title":         path.Title,
		"query_text":    path.QueryText,
		"difficulty":    path.Difficulty,
		"concept_count": path.ConceptCount,
		"ctime":         path.Ctime,
	}
	if err := execInsert(ctx, tx, "learning_paths", row); err != nil {
		return 0, fmt.Errorf("insert path: %v", err)
	}

	conceptByChunk := make(map[string]string, len(concepts))
	for _, c := range concepts {
		row := map[string]interface{}{
			"id":                  c.ID,
			"path_id":             path.ID,
			"chunk_id":            c.ChunkID,
			"sequence_order":      c.SequenceOrder,
			"relevance_score":     c.RelevanceScore,
			"question":            c.Question,
			"expected_answer":     c.ExpectedAnswer,
			"question_difficulty": c.QuestionDifficulty,
			"question_pending":    c.QuestionPending,
			"ctime":               path.Ctime,
		}
		if err := execInsert(ctx, tx, "concepts", row); err != nil {
			return 0, fmt.Errorf("insert concept %d: %v", c.SequenceOrder, err)
		}
		conceptByChunk[c.ChunkID] = c.ID
		for name, value := range c.Fields {
			fieldRow := map[string]interface{}{
				"concept_id": c.ID,
				"name":       name,
				"value":      value,
			}
			if err := execInsert(ctx, tx, "concept_fields", fieldRow); err != nil {
				return 0, fmt.Errorf("insert concept field %q: %v", name, err)
			}
		}
	}

	// Edges stay inside the path: prerequisites pointing at chunks outside
	// the result set are dropped.
	prereqsOf := make(map[string][]string, len(concepts))
	edgeCount := 0
	for _, c := range concepts {
		for _, prereqChunk := range c.PrereqChunkIDs {
			prereqConcept, ok := conceptByChunk[prereqChunk]
			if !ok {
				continue
			}
			if prereqConcept == c.ID {
				logutil.GetLogger(ctx).Warn("skipping self-loop edge", zap.String("concept_id", c.ID))
				continue
			}
			if reachable(prereqsOf, prereqConcept, c.ID) {
				logutil.GetLogger(ctx).Warn("skipping cycle-forming edge",
					zap.String("concept_id", c.ID),
					zap.String("prerequisite_concept_id", prereqConcept),
				)
				continue
			}
			row := map[string]interface{}{
				"concept_id":              c.ID,
				"prerequisite_concept_id": prereqConcept,
			}
			if err := execInsert(ctx, tx, "concept_edges", row); err != nil {
				return 0, fmt.Errorf("insert edge: %v", err)
			}
			prereqsOf[c.ID] = append(prereqsOf[c.ID], prereqConcept)
			edgeCount++
		}
	}
	return edgeCount, nil
}

// reachable reports whether target can be reached from start by following
// already-accepted prerequisite edges. The visited set bounds the walk by
// the path's concept count.
func reachable(prereqsOf map[string][]string, start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range prereqsOf[node] {
			if next == target {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
		}
	}
	return false
}

func execInsert(ctx context.Context, tx *sql.Tx, table string, row map[string]interface{}) error {
	sqlStr, args, err := builder.BuildInsert(table, []map[string]interface{}{row})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *PathRepo) GetPath(ctx context.Context, ownerID, pathID string) (*model.LearningPath, error) {
	const query = `
		SELECT id, owner_id, title, query_text, difficulty, concept_count, ctime
		FROM learning_paths
		WHERE id = $1 AND owner_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, pathID, ownerID)
	var p model.LearningPath
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.QueryText, &p.Difficulty, &p.ConceptCount, &p.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PathRepo) ListPaths(ctx context.Context, ownerID string) ([]model.LearningPath, error) {
	const query = `
		SELECT id, owner_id, title, query_text, difficulty, concept_count, ctime
		FROM learning_paths
		WHERE owner_id = $1
		ORDER BY ctime DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LearningPath
	for rows.Next() {
		var p model.LearningPath
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.QueryText, &p.Difficulty, &p.ConceptCount, &p.Ctime); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PathRepo) ListConcepts(ctx context.Context, pathID string) ([]model.ConceptRecord, error) {
	const query = `
		SELECT id, path_id, chunk_id, sequence_order, relevance_score,
			question, expected_answer, question_difficulty, question_pending, ctime
		FROM concepts
		WHERE path_id = $1
		ORDER BY sequence_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ConceptRecord
	for rows.Next() {
		var c model.ConceptRecord
		if err := rows.Scan(&c.ID, &c.PathID, &c.ChunkID, &c.SequenceOrder, &c.RelevanceScore,
			&c.Question, &c.ExpectedAnswer, &c.QuestionDifficulty, &c.QuestionPending, &c.Ctime); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachFields(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PathRepo) attachFields(ctx context.Context, concepts []model.ConceptRecord) error {
	if len(concepts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(concepts))
	idx := make(map[string]int, len(concepts))
	for i, c := range concepts {
		ids = append(ids, c.ID)
		idx[c.ID] = i
	}
	query, args, err := sqlx.In(`SELECT concept_id, name, value FROM concept_fields WHERE concept_id IN (?)`, ids)
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
		var conceptID, name, value string
		if err := rows.Scan(&conceptID, &name, &value); err != nil {
			return err
		}
		i, ok := idx[conceptID]
		if !ok {
			continue
		}
		if concepts[i].Fields == nil {
			concepts[i].Fields = make(map[string]string)
		}
		concepts[i].Fields[name] = value
	}
	return rows.Err()
}

// GetConcept loads one concept together with its owning path (for the
// ownership check) and its resolved prerequisite summaries.
func (r *PathRepo) GetConcept(ctx context.Context, ownerID, conceptID string) (*model.ConceptRecord, []model.ConceptSummary, error) {
	const query = `
		SELECT c.id, c.path_id, c.chunk_id, c.sequence_order, c.relevance_score,
			c.question, c.expected_answer, c.question_difficulty, c.question_pending, c.ctime
		FROM concepts c
		JOIN learning_paths p ON p.id = c.path_id
		WHERE c.id = $1 AND p.owner_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, conceptID, ownerID)
	var c model.ConceptRecord
	if err := row.Scan(&c.ID, &c.PathID, &c.ChunkID, &c.SequenceOrder, &c.RelevanceScore,
		&c.Question, &c.ExpectedAnswer, &c.QuestionDifficulty, &c.QuestionPending, &c.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErr.ErrNotFound
		}
		return nil, nil, err
	}
	one := []model.ConceptRecord{c}
	if err := r.attachFields(ctx, one); err != nil {
		return nil, nil, err
	}
	c = one[0]
	prereqs, err := r.listPrereqSummaries(ctx, conceptID)
	if err != nil {
		return nil, nil, err
	}
	return &c, prereqs, nil
}

func (r *PathRepo) listPrereqSummaries(ctx context.Context, conceptID string) ([]model.ConceptSummary, error) {
	const query = `
		SELECT c.id, c.chunk_id, COALESCE(ch.concept, ''), c.sequence_order
		FROM concept_edges e
		JOIN concepts c ON c.id = e.prerequisite_concept_id
		LEFT JOIN chunks ch ON ch.id = c.chunk_id
		WHERE e.concept_id = $1
		ORDER BY c.sequence_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ConceptSummary
	for rows.Next() {
		var s model.ConceptSummary
		if err := rows.Scan(&s.ID, &s.ChunkID, &s.Concept, &s.SequenceOrder); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PathRepo) CountEdges(ctx context.Context, pathID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM concept_edges e
		JOIN concepts c ON c.id = e.concept_id
		WHERE c.path_id = $1
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, pathID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeletePath removes the path; concepts, fields and edges go with it via
// cascade.
func (r *PathRepo) DeletePath(ctx context.Context, ownerID, pathID string) error {
	const query = `DELETE FROM learning_paths WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, query, pathID, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
