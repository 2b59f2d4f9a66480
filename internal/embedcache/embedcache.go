package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pathweaver/pathweaver/internal/ai"
	"github.com/pathweaver/pathweaver/internal/model"
	"github.com/pathweaver/pathweaver/internal/repo"
)

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type lruEmbedder struct {
	inner ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

// NewLRUEmbedder keeps recent embeddings in memory. Sits in front of the
// DB-backed layer so hot queries never leave the process.
func NewLRUEmbedder(inner ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if size <= 0 {
		size = 4096
	}
	return &lruEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (e *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := taskType + ":" + hashText(text)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}
	emb, err := e.inner.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, emb)
	return emb, nil
}

func (e *lruEmbedder) ModelName() string {
	return e.inner.ModelName()
}

type dbEmbedder struct {
	inner ai.IEmbedder
	repo  *repo.EmbeddingCacheRepo
}

// NewDBEmbedder persists embeddings keyed by (model, task type, content
// hash). Cache failures are logged and ignored; the embedding API remains
// the source of truth.
func NewDBEmbedder(inner ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	return &dbEmbedder{inner: inner, repo: cacheRepo}
}

func (e *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	contentHash := hashText(text)
	cached, ok, err := e.repo.Get(ctx, e.inner.ModelName(), taskType, contentHash)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}
	emb, err := e.inner.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Save(ctx, &model.EmbeddingCache{
		ModelName:   e.inner.ModelName(),
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   emb,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache write failed", zap.Error(err))
	}
	return emb, nil
}

func (e *dbEmbedder) ModelName() string {
	return e.inner.ModelName()
}
