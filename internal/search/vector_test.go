package search

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("normalized vector has norm² %v", sum)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected direction: %v", v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("zero vector should stay zero, got %v", v)
		}
	}
}

func TestDotOfNormalizedVectorsIsCosine(t *testing.T) {
	a := normalize([]float32{1, 1})
	b := normalize([]float32{1, 0})
	got := dot(a, b)
	want := math.Cos(math.Pi / 4)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("dot = %v, want %v", got, want)
	}
}

func TestDotMismatchedLengths(t *testing.T) {
	got := dot([]float32{1, 2, 3}, []float32{1, 2})
	if got != 5 {
		t.Errorf("dot over shorter length: got %v, want 5", got)
	}
}
