package engine

// FindRuns marks the members of every maximal run of consecutive true
// flags whose length is at least minRun. The input must already be
// ordered by opening time within a single store; the scan tracks the
// start of the current block and flushes it whenever the value changes.
func FindRuns(flags []bool, minRun int) []bool {
	marked := make([]bool, len(flags))
	if len(flags) == 0 || minRun <= 0 {
		return marked
	}

	start := 0
	flush := func(end int) {
		if flags[start] && end-start >= minRun {
			for i := start; i < end; i++ {
				marked[i] = true
			}
		}
	}

	for i := 1; i < len(flags); i++ {
		if flags[i] != flags[start] {
			flush(i)
			start = i
		}
	}
	flush(len(flags))

	return marked
}
