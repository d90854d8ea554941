// Package analysis implements the scoring and detection engine: usage
// aggregation, plan-fit mismatch detection, revenue risk scans and expansion
// scoring.
package analysis

// Trend compares the second half of an ordered sample sequence against the
// first. The split point is len/2; for odd counts the extra element falls
// into the second half. Fewer than two samples, or a zero first-half
// average, yields 0.0 rather than an error.
func Trend(samples []float64) float64 {
	if len(samples) < 2 {
		return 0.0
	}

	midpoint := len(samples) / 2
	avgFirst := mean(samples[:midpoint])
	avgSecond := mean(samples[midpoint:])

	if avgFirst == 0 {
		return 0.0
	}
	return (avgSecond - avgFirst) / avgFirst
}

// UtilizationRatio divides consumed quantity by the plan limit. The second
// return value is false when no positive limit exists ("no data", not zero).
func UtilizationRatio(total float64, limit *float64) (float64, bool) {
	if limit == nil || *limit <= 0 {
		return 0, false
	}
	return total / *limit, true
}

// MeanUtilization averages per-metric utilization ratios. Metrics without a
// limit never appear in the input, so they are excluded from the mean rather
// than counted as zero.
func MeanUtilization(ratios map[string]float64) float64 {
	if len(ratios) == 0 {
		return 0.0
	}
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	return sum / float64(len(ratios))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
