package embedclient

import (
	"context"
	"testing"
)

type fakeClient struct {
	calls int
	vec   []float32
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, nil
}

func (f *fakeClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestCachingClientEmbedHitsCacheOnSecondCall(t *testing.T) {
	inner := &fakeClient{vec: make([]float32, Dim)}
	c := NewCachingClient(inner, "")

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner.calls = %d, want 1 (second call should hit cache)", inner.calls)
	}
}

func TestCachingClientEmbedBatchPartialHit(t *testing.T) {
	inner := &fakeClient{vec: make([]float32, Dim)}
	c := NewCachingClient(inner, "")

	if _, err := c.Embed(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	out, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d", len(out))
	}
	if inner.calls != 2 {
		t.Errorf("inner.calls = %d, want 2 (one Embed, one EmbedBatch for the miss)", inner.calls)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	if got := EstimateTokens("ab"); got != 1 {
		t.Errorf("EstimateTokens(short) = %d, want 1", got)
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens(8 chars) = %d, want 2", got)
	}
}
