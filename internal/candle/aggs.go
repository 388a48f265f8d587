package candle

import "sort"

// epsilon bounds the floating point tolerance invariants in spec.
const epsilon = 1e-9

// Aggs is one price-bin's buy/sell volume aggregation within a candle.
type Aggs struct {
	TP float64 `json:"tp"`
	BV float64 `json:"bv"`
	SV float64 `json:"sv"`
	V  float64 `json:"v"`
	BQ float64 `json:"bq,omitempty"`
	SQ float64 `json:"sq,omitempty"`
	Q  float64 `json:"q,omitempty"`
}

// binsByTP keeps a candle's Aggs sorted ascending by TP and addressable by
// key, mirroring the "uniquely keyed by tp and sorted ascending" invariant.
type binsByTP []Aggs

func (b binsByTP) find(tp float64) int {
	for i, a := range b {
		if a.TP == tp {
			return i
		}
	}
	return -1
}

// applyTrade inserts or updates the bin for tp with one trade's volume.
func applyTrade(bins []Aggs, tp float64, qty float64, buy bool) []Aggs {
	idx := binsByTP(bins).find(tp)
	if idx == -1 {
		a := Aggs{TP: tp}
		if buy {
			a.BV = qty
		} else {
			a.SV = qty
		}
		a.V = a.BV + a.SV
		bins = append(bins, a)
		sort.Slice(bins, func(i, j int) bool { return bins[i].TP < bins[j].TP })
		return bins
	}
	if buy {
		bins[idx].BV += qty
	} else {
		bins[idx].SV += qty
	}
	bins[idx].V = bins[idx].BV + bins[idx].SV
	return bins
}

// mergeBins folds src's bins into dst, summing matching tp entries and
// appending new ones, then re-sorts — used by rollup.
func mergeBins(dst []Aggs, src []Aggs) []Aggs {
	for _, s := range src {
		idx := binsByTP(dst).find(s.TP)
		if idx == -1 {
			dst = append(dst, s)
			continue
		}
		dst[idx].BV += s.BV
		dst[idx].SV += s.SV
		dst[idx].V += s.V
		dst[idx].BQ += s.BQ
		dst[idx].SQ += s.SQ
		dst[idx].Q += s.Q
	}
	sort.Slice(dst, func(i, j int) bool { return dst[i].TP < dst[j].TP })
	return dst
}
