package query

import "math"

// MoviesAgeHistogram counts movies with Year >= startYear and Rank >= minRank
// by year offset: hist[i] is the number released in startYear+i.
//
// The slice is as long as the largest qualifying offset plus one, with zero
// entries for offsets nothing fell into. When no movie qualifies the result is
// empty.
func (e *Engine) MoviesAgeHistogram(startYear int, minRank float64) []int {
	hist := []int{}
	for m := range e.store.Movies() {
		if m.Year < startYear || m.Rank < minRank {
			continue
		}
		offset := m.Year - startYear
		if offset >= len(hist) {
			hist = append(hist, make([]int, offset+1-len(hist))...)
		}
		hist[offset]++
	}
	return hist
}

// AvgAgeOfMoviesWithRankAbove returns the mean of refYear-Year over movies
// ranked >= minRank. With no qualifying movie the result is NaN.
func (e *Engine) AvgAgeOfMoviesWithRankAbove(refYear int, minRank float64) float64 {
	var sum int64
	count := 0
	for m := range e.store.Movies() {
		if m.Rank >= minRank {
			sum += int64(m.Age(refYear))
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return float64(sum) / float64(count)
}

// SumOfAllMoviesAges sums refYear-Year over every movie regardless of rank.
func (e *Engine) SumOfAllMoviesAges(refYear int) int64 {
	var sum int64
	for m := range e.store.Movies() {
		sum += int64(m.Age(refYear))
	}
	return sum
}
