package candle

import "testing"

func TestCalculateBinSizeUltraTier(t *testing.T) {
	r := CalculateBinSize(65000, 0.1)
	if r.Tier != TierUltra {
		t.Fatalf("expected ultra tier, got %s", r.Tier)
	}
	if r.NiceBinSize <= 0 {
		t.Fatalf("expected positive bin size, got %v", r.NiceBinSize)
	}
	if r.BinMultiplier < 1 {
		t.Fatalf("expected binMultiplier >= 1, got %v", r.BinMultiplier)
	}
	if !IsNiceNumber(r.NiceBinSize) {
		t.Fatalf("expected a nice number, got %v", r.NiceBinSize)
	}
}

func TestCalculateBinSizeMemeCoinTier(t *testing.T) {
	r := CalculateBinSize(0.0005, 0.00000001)
	if r.Tier != TierMemeCoin {
		t.Fatalf("expected memeCoin tier, got %s", r.Tier)
	}
	if r.NiceBinSize <= 0 || r.BinMultiplier < 1 {
		t.Fatalf("invariant violated: %+v", r)
	}
}

func TestCalculateBinSizeIsMultipleOfTick(t *testing.T) {
	tv := 0.01
	r := CalculateBinSize(1500, tv)
	ratio := r.NiceBinSize / tv
	rounded := float64(int64(ratio + 0.5))
	if diff := ratio - rounded; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected nice bin size to be a multiple of tick: ratio=%v", ratio)
	}
}

func TestIsNiceNumberRecognizesAllowedMultiples(t *testing.T) {
	for _, v := range []float64{1, 2, 2.5, 4, 5, 10, 20, 25, 40, 50, 0.1, 0.25} {
		if !IsNiceNumber(v) {
			t.Fatalf("expected %v to be a nice number", v)
		}
	}
	if IsNiceNumber(3) {
		t.Fatal("3 should not be a nice number")
	}
}
