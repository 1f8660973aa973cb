package sdruntime

import (
	"crypto/rand"
	"math/big"
)

// MaxSeed is the exclusive upper bound for randomly drawn seeds. Seeds stay
// inside the signed 32-bit range so they round-trip through every backend
// and through JSON clients that parse numbers as float64.
const MaxSeed int64 = 2147483647

var maxSeedBig = big.NewInt(MaxSeed)

// RandomSeed draws a seed uniformly from [0, MaxSeed) using crypto/rand.
func RandomSeed() int64 {
	n, err := rand.Int(rand.Reader, maxSeedBig)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is unavailable
		return 42
	}
	return n.Int64()
}

// PlanSeeds returns one seed per image. With a base the result is
// base, base+1, ..., base+n-1. Without one every seed is drawn
// independently, so a random batch is not reproducible from its first seed.
func PlanSeeds(n int, base *int64) []int64 {
	if n <= 0 {
		return nil
	}

	seeds := make([]int64, n)
	for i := range seeds {
		if base != nil {
			seeds[i] = *base + int64(i)
		} else {
			seeds[i] = RandomSeed()
		}
	}
	return seeds
}
