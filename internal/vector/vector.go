// Package vector keeps an embedded semantic index over decision
// summaries, so "why did we pick X" questions survive across sessions.
// The index lives beside the rest of the project memory and is only
// maintained for projects that opted in.
package vector

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/philippgille/chromem-go"
)

// lastIndexedFeature tracks how far Sync got, so re-runs only index new
// decisions.
const lastIndexedFeature = "vector_last_indexed_decision"

// Index is a persistent chromem collection of decision embeddings.
type Index struct {
	db         *chromem.DB
	collection string
	dims       int
}

func Open(projectPath string, cfg config.VectorConfig) (*Index, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = config.DefaultVectorDimensions
	}
	if cfg.Collection == "" {
		cfg.Collection = config.DefaultVectorCollection
	}

	dir := store.VectorsDir(projectPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return &Index{db: db, collection: cfg.Collection, dims: cfg.Dimensions}, nil
}

// IndexDecision upserts one decision summary. Embeddings are provided
// manually, so the collection never needs an embedding func.
func (ix *Index) IndexDecision(ctx context.Context, eventID int64, summary string, createdAt time.Time) error {
	col, err := ix.db.GetOrCreateCollection(ix.collection, nil, nil)
	if err != nil {
		return err
	}
	return col.AddDocuments(ctx, []chromem.Document{
		{
			ID:      strconv.FormatInt(eventID, 10),
			Content: summary,
			Metadata: map[string]string{
				"event_id":   strconv.FormatInt(eventID, 10),
				"created_at": createdAt.UTC().Format(time.RFC3339),
			},
			Embedding: Embed(summary, ix.dims),
		},
	}, 1)
}

// Sync indexes decisions recorded since the last sync. Called from the
// CLI rather than the journal write path, so projects that never opted
// in never pay for it.
func (ix *Index) Sync(ctx context.Context, ps *store.ProjectStore) (int, error) {
	indexed := 0
	err := ps.Update(ctx, func(tx *store.Tx) error {
		last, _ := strconv.ParseInt(tx.State.Features[lastIndexedFeature], 10, 64)
		maxSeen := last
		for _, decision := range tx.State.Decisions {
			if decision.EventID <= last {
				continue
			}
			if err := ix.IndexDecision(ctx, decision.EventID, decision.Summary, decision.CreatedAt); err != nil {
				return err
			}
			indexed++
			if decision.EventID > maxSeen {
				maxSeen = decision.EventID
			}
		}
		tx.State.Features[lastIndexedFeature] = strconv.FormatInt(maxSeen, 10)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return indexed, nil
}

// Result is one search hit.
type Result struct {
	EventID int64   `json:"event_id"`
	Summary string  `json:"summary"`
	Score   float32 `json:"score"`
}

// Search returns the decisions most similar to the query, best first.
// An index with nothing in it returns no hits, not an error.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	col := ix.db.GetCollection(ix.collection, nil)
	if col == nil {
		return nil, nil
	}
	if count := col.Count(); count < limit {
		if count == 0 {
			return nil, nil
		}
		limit = count
	}

	docs, err := col.QueryEmbedding(ctx, Embed(query, ix.dims), limit, nil, nil)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		eventID, _ := strconv.ParseInt(doc.ID, 10, 64)
		results = append(results, Result{EventID: eventID, Summary: doc.Content, Score: doc.Similarity})
	}
	return results, nil
}
