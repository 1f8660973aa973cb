package sdruntime

import "testing"

func TestPlanSeeds_WithBase(t *testing.T) {
	base := int64(42)
	seeds := PlanSeeds(4, &base)

	want := []int64{42, 43, 44, 45}
	if len(seeds) != len(want) {
		t.Fatalf("PlanSeeds() len = %d, want %d", len(seeds), len(want))
	}
	for i := range want {
		if seeds[i] != want[i] {
			t.Errorf("seeds[%d] = %d, want %d", i, seeds[i], want[i])
		}
	}
}

func TestPlanSeeds_NegativeBase(t *testing.T) {
	base := int64(-1)
	seeds := PlanSeeds(2, &base)
	if seeds[0] != -1 || seeds[1] != 0 {
		t.Errorf("PlanSeeds() = %v, want [-1 0]", seeds)
	}
}

func TestPlanSeeds_Random(t *testing.T) {
	seeds := PlanSeeds(64, nil)
	if len(seeds) != 64 {
		t.Fatalf("PlanSeeds() len = %d, want 64", len(seeds))
	}

	distinct := make(map[int64]struct{})
	for _, s := range seeds {
		if s < 0 || s >= MaxSeed {
			t.Errorf("seed %d outside [0, %d)", s, MaxSeed)
		}
		distinct[s] = struct{}{}
	}
	// 64 draws from 2^31 values colliding is vanishingly unlikely
	if len(distinct) < 60 {
		t.Errorf("only %d distinct seeds out of 64", len(distinct))
	}
}

func TestPlanSeeds_Empty(t *testing.T) {
	if seeds := PlanSeeds(0, nil); seeds != nil {
		t.Errorf("PlanSeeds(0) = %v, want nil", seeds)
	}
}

func TestRandomSeed_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if s := RandomSeed(); s < 0 || s >= MaxSeed {
			t.Fatalf("RandomSeed() = %d outside [0, %d)", s, MaxSeed)
		}
	}
}
