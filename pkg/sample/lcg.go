// Package sample draws reproducible pseudo-random id sequences.
//
// The workload picks the movies and actors it queries and mutates with a
// fixed linear congruential generator, so every run over the same dataset
// touches the same entities and timings stay comparable between runs.
package sample

// LCG parameters (glibc-style, modulus 2^31).
const (
	lcgA = 1103515245
	lcgC = 12345
	lcgM = 1 << 31
)

// Ints returns count values in [0, max] generated from seed.
//
// Values may repeat and may name ids that do not exist; callers skip misses.
func Ints(max, count int, seed int64) []int {
	if count <= 0 {
		return nil
	}
	out := make([]int, count)
	state := seed
	for i := range out {
		state = (lcgA*state + lcgC) % lcgM
		out[i] = int(state % int64(max+1))
	}
	return out
}
