package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is a brute-force cosine-similarity index.
type VectorIndex struct {
	mu     sync.RWMutex
	chunks map[string]models.Chunk
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{chunks: map[string]models.Chunk{}}
}

func (v *VectorIndex) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range chunks {
		v.chunks[ch.ID] = ch
	}
	return nil
}

func (v *VectorIndex) Search(_ context.Context, queryVec []float32, limit int) ([]models.Chunk, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	type scored struct {
		ch    models.Chunk
		score float64
	}
	all := make([]scored, 0, len(v.chunks))
	for _, ch := range v.chunks {
		all = append(all, scored{ch, cosine(queryVec, ch.Embedding)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	if limit > len(all) {
		limit = len(all)
	}
	out := make([]models.Chunk, 0, limit)
	for _, s := range all[:limit] {
		out = append(out, s.ch)
	}
	return out, nil
}

func (v *VectorIndex) DeleteByFilename(_ context.Context, filename string) error {
	v.deleteWhere(func(ch models.Chunk) bool { return ch.Filename == filename })
	return nil
}

func (v *VectorIndex) DeleteByFileID(_ context.Context, fileID int64) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: file id %d", core.ErrInvalidInput, fileID)
	}
	v.deleteWhere(func(ch models.Chunk) bool { return ch.FileID == fileID })
	return nil
}

func (v *VectorIndex) DeleteByCorrelationID(_ context.Context, correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("%w: empty correlation id", core.ErrInvalidInput)
	}
	v.deleteWhere(func(ch models.Chunk) bool { return ch.CorrelationID == correlationID })
	return nil
}

func (v *VectorIndex) deleteWhere(match func(models.Chunk) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, ch := range v.chunks {
		if match(ch) {
			delete(v.chunks, id)
		}
	}
}

// Chunks returns a snapshot of everything indexed.
func (v *VectorIndex) Chunks() []models.Chunk {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.Chunk, 0, len(v.chunks))
	for _, ch := range v.chunks {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
