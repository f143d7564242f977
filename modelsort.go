package qtbridge

import (
	"fmt"
	"sort"
)

// SortedRows is implemented by backends that keep their rows in sorted
// order. RowLess is a less function over current row positions, equivalent
// to the sort package. RowMove moves row src to index dst without any
// change announcement; announcements are the helper's job.
type SortedRows interface {
	RowLess(i, j int) bool
	RowMove(src, dst int)
}

// SortInserted folds rows appended at [start:end) into their sorted
// positions and announces the resulting contiguous insertion runs through
// the adapter. The backend must implement SortedRows over the same rows the
// adapter serves.
func SortInserted(m *Model, rows SortedRows, start, end int) {
	mvStart, mvEnd := -1, -1
	announced := 0

	announce := func(first, last int) {
		m.StartInsert(first, last)
		m.FinishInsert()
		announced += last - first + 1
	}

	for i := start; i < end; i++ {
		n := sort.Search(i, func(j int) bool { return rows.RowLess(i, j) })
		if i != n {
			rows.RowMove(i, n)
		}

		if mvStart < 0 && mvEnd < 0 {
			mvStart, mvEnd = n, n
		} else if n >= mvStart && n <= mvEnd+1 {
			mvEnd++
		} else {
			announce(mvStart, mvEnd)
			mvStart, mvEnd = n, n
		}
	}

	if mvStart >= 0 && mvEnd >= 0 {
		announce(mvStart, mvEnd)
	}

	if announced != end-start {
		panic(fmt.Sprintf("announced insertion of %d rows, insert had %d", announced, end-start))
	}
}
