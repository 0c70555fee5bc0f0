package entry

import (
	"sort"
	"strconv"
)

func computeStats(entries []Entry, pending int) Stats {
	st := Stats{Total: len(entries), Pending: pending, PerBib: []BibStats{}}
	byBib := make(map[string]*BibStats)

	for _, e := range entries {
		switch e.Point {
		case PointStart:
			st.Starts++
		case PointFinish:
			st.Finishes++
		}
		if e.Bib == "" {
			st.Ungrouped++
			continue
		}

		b, ok := byBib[e.Bib]
		if !ok {
			b = &BibStats{Bib: e.Bib, First: e.Timestamp}
			byBib[e.Bib] = b
		}
		b.Count++
		if e.Point == PointStart {
			b.Starts++
		} else {
			b.Finishes++
		}
		if !containsRun(b.Runs, e.Run) {
			b.Runs = append(b.Runs, e.Run)
		}
		if e.Timestamp < b.First {
			b.First = e.Timestamp
		}
		if e.Timestamp > b.Last {
			b.Last = e.Timestamp
		}
	}

	for _, b := range byBib {
		sort.Ints(b.Runs)
		st.PerBib = append(st.PerBib, *b)
	}
	sort.Slice(st.PerBib, func(i, j int) bool {
		return bibLess(st.PerBib[i].Bib, st.PerBib[j].Bib)
	})
	st.UniqueBibs = len(st.PerBib)
	return st
}

// bibLess orders bibs numerically, then textually so "7" and "007" stay
// distinct and deterministic.
func bibLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil && na != nb {
		return na < nb
	}
	return a < b
}

func containsRun(runs []int, run int) bool {
	for _, r := range runs {
		if r == run {
			return true
		}
	}
	return false
}
