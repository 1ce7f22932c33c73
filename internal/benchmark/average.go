package benchmark

// Average is the arithmetic mean of the sample durations. An empty slice is a
// configuration error.
func Average(samples []IterationSample) (float64, error) {
	if len(samples) == 0 {
		return 0, &ConfigurationError{Field: "epochRounds", Reason: "no measured iterations to average"}
	}
	var sum float64
	for _, s := range samples {
		sum += s.DurationMs
	}
	return sum / float64(len(samples)), nil
}
