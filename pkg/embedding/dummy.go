package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

const (
	dummyTable      = "chunks_dummy"
	dummyDimensions = 768
	dummyModel      = "dummy-embed-v1"
)

// Dummy returns deterministic vectors seeded from the input text.
// Used by tests and by environments without a real provider; identical
// text always yields an identical unit-length vector.
type Dummy struct{}

// NewDummy creates a dummy embedding provider.
func NewDummy() *Dummy {
	return &Dummy{}
}

// Name returns the provider tag.
func (p *Dummy) Name() string { return "dummy" }

// Model returns the embedding model identifier.
func (p *Dummy) Model() string { return dummyModel }

// TableName returns the provider's chunk table.
func (p *Dummy) TableName() string { return dummyTable }

// Dimensions returns the table's vector dimension.
func (p *Dummy) Dimensions() int { return dummyDimensions }

// Embed returns a deterministic unit vector seeded from text.
func (p *Dummy) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dummyDimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
