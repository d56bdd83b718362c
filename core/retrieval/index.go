package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/model"
	"golang.org/x/sync/errgroup"
)

// Index holds one L2 normalised embedding per chunk.
// Similarity is the inner product, the cosine of the raw vectors.
type Index struct {
	fingerprint string
	vectors     [][]float32
	dimension   int
}

// Match is a chunk returned by Nearest
type Match struct {
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Build embeds every chunk, at most parallelism calls at a time.
// If dimension is positive every vector must have that length, otherwise all
// vectors must match the first one. A mismatch fails with a non retryable ErrEmbedding.
func Build(ctx context.Context, fingerprint string, chunks []model.Chunk, embed pipeline.EmbedFunc, parallelism int, dimension int) (*Index, error) {
	if embed == nil {
		return nil, model.NewPipelineError(model.ErrEmbedding, fingerprint, false, errors.New("embed capability is not set"))
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vector, err := embed(gctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].Index, err)
			}
			vectors[i] = vector
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, model.AsTimeout(fingerprint, ctx.Err())
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, model.AsTimeout(fingerprint, err)
		}
		return nil, model.NewPipelineError(model.ErrEmbedding, fingerprint, !pipeline.IsPermanent(err), err)
	}

	return newIndex(fingerprint, vectors, dimension)
}

// FromVectors creates an index from already computed embeddings ordered by chunk index
func FromVectors(fingerprint string, vectors [][]float32) (*Index, error) {
	return newIndex(fingerprint, vectors, 0)
}

func newIndex(fingerprint string, vectors [][]float32, dimension int) (*Index, error) {
	if dimension <= 0 && len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dimension {
			return nil, model.NewPipelineError(model.ErrEmbedding, fingerprint, false, fmt.Errorf("chunk %d has embedding dimension %d, expected %d", i, len(v), dimension))
		}
		normalized[i] = Normalize(v)
	}

	return &Index{
		fingerprint: fingerprint,
		vectors:     normalized,
		dimension:   dimension,
	}, nil
}

// Len returns the number of indexed chunks
func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Dimension returns the embedding dimension, 0 for an empty index
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Vectors returns the normalised embeddings ordered by chunk index
func (ix *Index) Vectors() [][]float32 {
	return ix.vectors
}

// Nearest returns the k chunks most similar to query, best first.
// Ties are broken by ascending chunk index.
func (ix *Index) Nearest(query []float32, k int) ([]Match, error) {
	if k <= 0 || len(ix.vectors) == 0 {
		return []Match{}, nil
	}
	if len(query) != ix.dimension {
		return nil, model.NewPipelineError(model.ErrEmbedding, ix.fingerprint, false, fmt.Errorf("query has embedding dimension %d, expected %d", len(query), ix.dimension))
	}

	q := Normalize(query)
	matches := make([]Match, len(ix.vectors))
	for i, v := range ix.vectors {
		matches[i] = Match{ChunkIndex: i, Score: dot(q, v)}
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].ChunkIndex < matches[b].ChunkIndex
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Normalize returns a copy of v scaled to unit length.
// A zero vector is returned as zeros.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
