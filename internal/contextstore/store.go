// Package contextstore keeps successfully translated artifacts as embedded
// documents so later translations of similar sources can use them as
// reference material.
package contextstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("codetran.contextstore")

const defaultCollection = "artifacts"

var (
	ErrEmptyEmbedding = errors.New("embedding is empty")
	ErrInvalidK       = errors.New("k must be positive")
)

// Match is one search hit.
type Match struct {
	ID         string
	UnitID     string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Store is the persistent artifact context store.
type Store interface {
	Store(ctx context.Context, unitID, artifact string, embedding []float32) (string, error)
	Search(ctx context.Context, embedding []float32, filters map[string]string, k int) ([]Match, error)
}

// Config selects a persistent directory or, when Path is empty, an
// in-memory database.
type Config struct {
	Path     string
	Compress bool
}

// ChromemStore implements Store on chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

func NewChromemStore(cfg Config, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path := expandHome(cfg.Path)
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating context store directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening context store: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(defaultCollection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	logger.Debug("context store ready",
		zap.String("path", cfg.Path),
		zap.Int("documents", collection.Count()),
	)
	return &ChromemStore{db: db, collection: collection, logger: logger}, nil
}

// Embeddings are always computed by an Embedder before reaching the store.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("context store requires precomputed embeddings")
}

func (s *ChromemStore) Store(ctx context.Context, unitID, artifact string, embedding []float32) (string, error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Store")
	defer span.End()
	span.SetAttributes(attribute.String("unit", unitID))

	if len(embedding) == 0 {
		span.SetStatus(codes.Error, ErrEmptyEmbedding.Error())
		return "", ErrEmptyEmbedding
	}

	id := uuid.NewString()
	doc := chromem.Document{
		ID:      id,
		Content: artifact,
		Metadata: map[string]string{
			"unit_id":    unitID,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
		Embedding: embedding,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("adding document: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("stored artifact", zap.String("unit", unitID), zap.String("id", id))
	return id, nil
}

func (s *ChromemStore) Search(ctx context.Context, embedding []float32, filters map[string]string, k int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if len(embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	// chromem requires k <= document count
	count := s.collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, filters, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying context store: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:         r.ID,
			UnitID:     r.Metadata["unit_id"],
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count returns the number of stored artifacts.
func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
