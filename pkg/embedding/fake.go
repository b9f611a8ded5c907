package embedding

import (
	"context"
	"math"
)

// FakeClient is a deterministic, network-free embedding client used by
// tests elsewhere in the module (ingestion, query fusion) that need
// reproducible vectors without a live provider. It hashes each input's
// bytes into a normalized pseudo-random vector, so identical text
// always yields identical vectors, while any change in the text, however
// small, yields an unrelated vector.
type FakeClient struct {
	dimension int
	provider  Provider
}

// NewFake returns a FakeClient producing vectors of the given
// dimension, tagged with the given provider name (purely informational).
func NewFake(dimension int, provider Provider) *FakeClient {
	return &FakeClient{dimension: dimension, provider: provider}
}

func (f *FakeClient) Provider() Provider { return f.provider }

func (f *FakeClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, f.dimension)
	}
	return out, nil
}

func deterministicVector(text string, dimension int) []float32 {
	seed := uint32(2166136261)
	for _, c := range text {
		seed = (seed ^ uint32(c)) * 16777619
	}

	v := make([]float32, dimension)
	var sumSq float64
	for i := range v {
		seed = seed*1103515245 + 12345
		val := float32(int32(seed)) / float32(1<<31)
		v[i] = val
		sumSq += float64(val) * float64(val)
	}

	norm := float32(1.0)
	if sumSq > 0 {
		norm = float32(1.0 / math.Sqrt(sumSq))
	}
	for i := range v {
		v[i] *= norm
	}
	return v
}
