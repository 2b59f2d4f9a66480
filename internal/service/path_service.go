package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathweaver/pathweaver/internal/ai"
	"github.com/pathweaver/pathweaver/internal/model"
	appErr "github.com/pathweaver/pathweaver/internal/pkg/errors"
	"github.com/pathweaver/pathweaver/internal/repo"
)

var ErrEmptyResultSet = appErr.ErrEmptyResult

// AIManager is the slice of the ai layer the pipeline needs; tests substitute
// a fake.
type AIManager interface {
	ExpandQuery(ctx context.Context, query string, sentenceCount int) (*model.ExpandedQuery, error)
	GenerateQuestion(ctx context.Context, chunk *model.ContentChunk, difficulty int) (*ai.Question, error)
}

type PathConfig struct {
	DefaultMinScore float32
	MaxLimit        int
	ExpandSentences int
	QuestionWorkers int
	PrereqMaxDepth  int
}

type PathService struct {
	manager AIManager
	chunks  *repo.ChunkRepo
	paths   *repo.PathRepo
	cfg     PathConfig
}

func NewPathService(manager AIManager, chunks *repo.ChunkRepo, paths *repo.PathRepo, cfg PathConfig) *PathService {
	if cfg.DefaultMinScore == 0 {
		cfg.DefaultMinScore = 0.7
	}
	if cfg.MaxLimit <= 0 || cfg.MaxLimit > repo.MaxSearchLimit {
		cfg.MaxLimit = repo.MaxSearchLimit
	}
	if cfg.ExpandSentences <= 0 {
		cfg.ExpandSentences = 5
	}
	if cfg.QuestionWorkers <= 0 {
		cfg.QuestionWorkers = 4
	}
	if cfg.PrereqMaxDepth <= 0 {
		cfg.PrereqMaxDepth = 3
	}
	return &PathService{
		manager: manager,
		chunks:  chunks,
		paths:   paths,
		cfg:     cfg,
	}
}

type CreatePathRequest struct {
	Query      string
	MinScore   float32
	Limit      int
	Title      string
	Difficulty string
}

type CreatePathResult struct {
	PathID            string   `json:"path_id"`
	ConceptCount      int      `json:"concept_count"`
	PrerequisiteCount int      `json:"prerequisite_count"`
	Warnings          []string `json:"warnings,omitempty"`
}

// CreatePath runs the whole pipeline: expand the query, search the corpus,
// generate questions concurrently, then materialize the path in one
// transaction. Network-bound generation finishes before the transaction
// opens.
func (s *PathService) CreatePath(ctx context.Context, ownerID string, req CreatePathRequest) (*CreatePathResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	difficulty, err := normalizeDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = s.cfg.DefaultMinScore
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.MaxLimit
	}
	if limit > s.cfg.MaxLimit {
		return nil, fmt.Errorf("limit exceeds maximum %d: %w", s.cfg.MaxLimit, appErr.ErrInvalid)
	}

	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID), zap.String("query", query))

	expanded, err := s.manager.ExpandQuery(ctx, query, s.cfg.ExpandSentences)
	if err != nil {
		logger.Error("query expansion failed", zap.Error(err))
		return nil, err
	}
	results, err := s.chunks.Search(ctx, expanded.Embedding, minScore, limit)
	if err != nil {
		logger.Error("similarity search failed", zap.Error(err))
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrEmptyResultSet
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	concepts, warnings := s.generateQuestions(ctx, results, questionDifficulty(difficulty))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Learning path: " + query
	}
	path := &model.LearningPath{
		ID:         newID(),
		OwnerID:    ownerID,
		Title:      title,
		QueryText:  query,
		Difficulty: difficulty,
		Ctime:      time.Now().Unix(),
	}
	edgeCount, err := s.paths.CreatePathTx(ctx, path, concepts)
	if err != nil {
		logger.Error("path materialization failed", zap.Error(err))
		return nil, err
	}
	logger.Info("learning path created",
		zap.String("path_id", path.ID),
		zap.Int("concepts", len(concepts)),
		zap.Int("edges", edgeCount),
		zap.Int("question_failures", len(warnings)),
	)
	return &CreatePathResult{
		PathID:            path.ID,
		ConceptCount:      len(concepts),
		PrerequisiteCount: edgeCount,
		Warnings:          warnings,
	}, nil
}

// generateQuestions fans per-chunk generation out over a bounded worker
// pool. One failed generation never fails the path; the concept is flagged
// pending and the failure is reported as a warning.
func (s *PathService) generateQuestions(ctx context.Context, results []model.SearchResult, difficulty int) ([]repo.ConceptInput, []string) {
	concepts := make([]repo.ConceptInput, len(results))
	var mu sync.Mutex
	var warnings []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.QuestionWorkers)
	for i := range results {
		group.Go(func() error {
			result := results[i]
			input := repo.ConceptInput{
				ID:             newID(),
				ChunkID:        result.Chunk.ID,
				SequenceOrder:  i,
				RelevanceScore: result.Score,
				PrereqChunkIDs: result.Chunk.PrerequisiteIDs,
				Fields: map[string]string{
					"subject": result.Chunk.Subject,
					"concept": result.Chunk.Concept,
				},
			}
			question, err := s.manager.GenerateQuestion(groupCtx, result.Chunk, difficulty)
			if err != nil {
				logutil.GetLogger(ctx).Warn("question generation failed",
					zap.String("chunk_id", result.Chunk.ID),
					zap.Error(err),
				)
				input.QuestionPending = true
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("question pending for concept %d (chunk %s)", i, result.Chunk.ID))
				mu.Unlock()
			} else {
				input.Question = question.Question
				input.ExpectedAnswer = question.ExpectedAnswer
				input.QuestionDifficulty = question.Difficulty
			}
			concepts[i] = input
			return nil
		})
	}
	// Workers never return errors; generation failures degrade to pending
	// concepts.
	_ = group.Wait()
	return concepts, warnings
}

type SearchRequest struct {
	Query        string
	MinScore     float32
	Limit        int
	IncludeGraph bool
}

// Search runs expansion plus retrieval without materializing anything,
// optionally resolving each hit's prerequisite chain and dependents.
func (s *PathService) Search(ctx context.Context, req SearchRequest) ([]model.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = s.cfg.DefaultMinScore
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.MaxLimit
	}
	if limit > s.cfg.MaxLimit {
		return nil, fmt.Errorf("limit exceeds maximum %d: %w", s.cfg.MaxLimit, appErr.ErrInvalid)
	}
	expanded, err := s.manager.ExpandQuery(ctx, query, s.cfg.ExpandSentences)
	if err != nil {
		return nil, err
	}
	results, err := s.chunks.Search(ctx, expanded.Embedding, minScore, limit)
	if err != nil {
		return nil, err
	}
	if req.IncludeGraph {
		for i := range results {
			chain, err := s.chunks.PrerequisitesOf(ctx, results[i].Chunk.ID, s.cfg.PrereqMaxDepth)
			if err != nil {
				return nil, err
			}
			results[i].PrerequisiteChain = chain
			dependents, err := s.chunks.DependentsOf(ctx, results[i].Chunk.ID)
			if err != nil {
				return nil, err
			}
			results[i].Dependents = dependents
		}
	}
	return results, nil
}

type PathDetail struct {
	Path     *model.LearningPath   `json:"path"`
	Concepts []model.ConceptRecord `json:"concepts"`
}

func (s *PathService) GetPath(ctx context.Context, ownerID, pathID string) (*PathDetail, error) {
	path, err := s.paths.GetPath(ctx, ownerID, pathID)
	if err != nil {
		return nil, err
	}
	concepts, err := s.paths.ListConcepts(ctx, pathID)
	if err != nil {
		return nil, err
	}
	return &PathDetail{Path: path, Concepts: concepts}, nil
}

func (s *PathService) ListPaths(ctx context.Context, ownerID string) ([]model.LearningPath, error) {
	return s.paths.ListPaths(ctx, ownerID)
}

type ConceptDetail struct {
	Concept       *model.ConceptRecord   `json:"concept"`
	Prerequisites []model.ConceptSummary `json:"prerequisites,omitempty"`
}

func (s *PathService) GetConcept(ctx context.Context, ownerID, conceptID string) (*ConceptDetail, error) {
	concept, prereqs, err := s.paths.GetConcept(ctx, ownerID, conceptID)
	if err != nil {
		return nil, err
	}
	return &ConceptDetail{Concept: concept, Prerequisites: prereqs}, nil
}

func (s *PathService) DeletePath(ctx context.Context, ownerID, pathID string) error {
	return s.paths.DeletePath(ctx, ownerID, pathID)
}

func normalizeDifficulty(d string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "":
		return model.DifficultyIntermediate, nil
	case model.DifficultyBeginner:
		return model.DifficultyBeginner, nil
	case model.DifficultyIntermediate:
		return model.DifficultyIntermediate, nil
	case model.DifficultyAdvanced:
		return model.DifficultyAdvanced, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q: %w", d, appErr.ErrInvalid)
	}
}

// questionDifficulty maps path difficulty onto the 1-5 question scale.
func questionDifficulty(pathDifficulty string) int {
	switch pathDifficulty {
	case model.DifficultyBeginner:
		return 2
	case model.DifficultyAdvanced:
		return 4
	default:
		return 3
	}
}
