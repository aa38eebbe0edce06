package abtest

import (
	"math"
	"testing"
)

func TestZScore_DegenerateCasesReturnZero(t *testing.T) {
	tests := []struct {
		name string
		p1   float64
		n1   int
		p2   float64
		n2   int
	}{
		{"empty first sample", 0.5, 0, 0.3, 100},
		{"empty second sample", 0.5, 100, 0.3, 0},
		{"both empty", 0, 0, 0, 0},
		{"equal proportions", 0.4, 200, 0.4, 200},
		{"both zero percent", 0, 100, 0, 100},
		{"both hundred percent", 1, 100, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if z := ZScore(tt.p1, tt.n1, tt.p2, tt.n2); z != 0 {
				t.Errorf("ZScore = %v, want 0", z)
			}
		})
	}
}

func TestZScore_Symmetric(t *testing.T) {
	a := ZScore(0.30, 500, 0.10, 500)
	b := ZScore(0.10, 500, 0.30, 500)
	if a != b {
		t.Errorf("ZScore not symmetric: %v vs %v", a, b)
	}
	if a <= 0 {
		t.Errorf("ZScore = %v, want positive", a)
	}
}

func TestZScore_MonotoneInGapAndSampleSize(t *testing.T) {
	// Widening the rate gap increases z.
	narrow := ZScore(0.22, 500, 0.20, 500)
	wide := ZScore(0.30, 500, 0.20, 500)
	if wide <= narrow {
		t.Errorf("wider gap should raise z: narrow=%v wide=%v", narrow, wide)
	}

	// More samples at the same gap increase z.
	small := ZScore(0.25, 100, 0.20, 100)
	large := ZScore(0.25, 1000, 0.20, 1000)
	if large <= small {
		t.Errorf("more samples should raise z: small=%v large=%v", small, large)
	}
}

func TestZScore_KnownValue(t *testing.T) {
	// 150/500 vs 50/500: pooled p = 0.2,
	// se = sqrt(0.2*0.8*(2/500)) ≈ 0.025298, z ≈ 7.906
	z := ZScore(0.30, 500, 0.10, 500)
	if math.Abs(z-7.906) > 0.01 {
		t.Errorf("z = %v, want ≈7.906", z)
	}
}

func TestConfidence_AnchorsAndSymmetry(t *testing.T) {
	if c := Confidence(0); math.Abs(c-0.5) > 1e-9 {
		t.Errorf("Confidence(0) = %v, want 0.5", c)
	}

	for _, z := range []float64{0.1, 0.5, 1.0, 1.96, 3.0} {
		sum := Confidence(z) + Confidence(-z)
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("Confidence(%v)+Confidence(-%v) = %v, want 1", z, z, sum)
		}
	}
}

func TestConfidence_ReferenceTable(t *testing.T) {
	// Standard normal CDF reference values. The implementation is an
	// approximation; tolerate 1% deviation, not bit-exactness.
	refs := []struct {
		z    float64
		want float64
	}{
		{0.5, 0.6915},
		{1.0, 0.8413},
		{1.28, 0.8997},
		{1.645, 0.9500},
		{1.96, 0.9750},
		{2.33, 0.9901},
		{3.0, 0.9987},
	}
	for _, r := range refs {
		got := Confidence(r.z)
		if math.Abs(got-r.want) > 0.01 {
			t.Errorf("Confidence(%v) = %v, want ≈%v", r.z, got, r.want)
		}
	}
}

func TestConfidence_MonotoneSweep(t *testing.T) {
	prev := Confidence(-6)
	for z := -6.0; z <= 6.0; z += 0.001 {
		c := Confidence(z)
		if c < prev-1e-12 {
			t.Fatalf("Confidence decreased at z=%v: %v -> %v", z, prev, c)
		}
		if c < 0 || c > 1 {
			t.Fatalf("Confidence(%v) = %v outside [0,1]", z, c)
		}
		prev = c
	}
}
