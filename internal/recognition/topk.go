package recognition

import "sort"

// TopK returns the indices of the k highest probabilities, highest first.
// Equal probabilities keep ascending index order. k is clamped to
// [1, len(probs)].
func TopK(probs []float64, k int) []int {
	if len(probs) == 0 {
		return nil
	}
	k = max(1, min(k, len(probs)))

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	return idx[:k]
}
