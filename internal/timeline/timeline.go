// Package timeline converts between (segment index, local time) pairs and
// the single cumulative time the user sees across a whole segment queue.
// All functions are pure over the duration table and must be re-derived,
// never cached, whenever a duration is corrected.
package timeline

// Total returns the sum of all segment durations.
func Total(durations []float64) float64 {
	var total float64
	for _, d := range durations {
		total += d
	}
	return total
}

// Cumulative maps (index, localTime) to cumulative time: the sum of all
// prior segment durations plus the local time into the indexed segment.
func Cumulative(durations []float64, index int, localTime float64) float64 {
	if index > len(durations) {
		index = len(durations)
	}
	var acc float64
	for i := 0; i < index; i++ {
		acc += durations[i]
	}
	return acc + localTime
}

// Locate maps a cumulative target back to (index, localTime). The target
// falls within segment i when accumulated <= target < accumulated + d(i).
// Targets at or beyond the total clamp to the end of the last segment.
func Locate(durations []float64, target float64) (int, float64) {
	if len(durations) == 0 {
		return 0, 0
	}
	if target < 0 {
		return 0, 0
	}
	var acc float64
	for i, d := range durations {
		if target < acc+d {
			return i, target - acc
		}
		acc += d
	}
	last := len(durations) - 1
	return last, durations[last]
}
