package index

import (
	"math"
	"sort"
)

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores entries against vec and keeps the k best. Ties keep the lower
// Position first.
func rank(vec []float32, entries []Entry, k int) []Result {
	if k <= 0 || len(entries) == 0 {
		return nil
	}
	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, Result{Entry: e, Score: CosineSimilarity(vec, e.Vector)})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Vector = append([]float32(nil), e.Vector...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
