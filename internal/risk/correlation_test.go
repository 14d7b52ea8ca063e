package risk

import "testing"

func TestReturnsCorrelationPerfect(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, -0.01, 0.02}

	if r := ReturnsCorrelation(a, a); !almostEqual(r, 1.0, 1e-9) {
		t.Errorf("self correlation = %f, want 1", r)
	}

	inverse := make([]float64, len(a))
	for i, v := range a {
		inverse[i] = -v
	}
	if r := ReturnsCorrelation(a, inverse); !almostEqual(r, -1.0, 1e-9) {
		t.Errorf("inverse correlation = %f, want -1", r)
	}
}

func TestReturnsCorrelationAlignsTails(t *testing.T) {
	a := []float64{0.5, 0.5, 0.01, -0.02, 0.03}
	b := []float64{0.01, -0.02, 0.03}

	// Only the final three samples of a overlap b, and they match exactly.
	if r := ReturnsCorrelation(a, b); !almostEqual(r, 1.0, 1e-9) {
		t.Errorf("tail-aligned correlation = %f, want 1", r)
	}
}

func TestReturnsCorrelationDegenerate(t *testing.T) {
	if r := ReturnsCorrelation([]float64{0.01}, []float64{0.02}); r != 0 {
		t.Errorf("single sample correlation = %f, want 0", r)
	}
	flat := []float64{0.01, 0.01, 0.01}
	varied := []float64{0.01, -0.02, 0.03}
	if r := ReturnsCorrelation(flat, varied); r != 0 {
		t.Errorf("zero-variance correlation = %f, want 0", r)
	}
}
