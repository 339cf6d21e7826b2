package memory

import "context"

// fakeEmbedClient returns a deterministic vector for each text so
// tests can assert exact similarity relationships.
type fakeEmbedClient struct {
	vecFor func(text string) []float32
}

func (f *fakeEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vecFor(text), nil
}

func (f *fakeEmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vecFor(t)
	}
	return out, nil
}

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}
