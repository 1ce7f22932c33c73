package benchmark

import "sort"

const (
	// TotalRow is the name of the synthetic first row of every AggregatedReport.
	TotalRow = "Total"

	bytesPerMB = 1048576
)

// Aggregate sums samples per kernel and orders the groups by descending time,
// keeping first-seen order for ties. The first row is always the "Total" row.
func Aggregate(samples []ParsedKernelSample) AggregatedReport {
	index := make(map[string]int, len(samples))
	groups := make([]KernelRow, 0, len(samples))
	var total float64
	for _, s := range samples {
		total += s.TimeMs
		i, ok := index[s.Kernel]
		if !ok {
			i = len(groups)
			index[s.Kernel] = i
			groups = append(groups, KernelRow{Kernel: s.Kernel})
		}
		groups[i].TimeMs += s.TimeMs
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].TimeMs > groups[b].TimeMs
	})

	rows := make([]KernelRow, 0, len(groups)+1)
	rows = append(rows, KernelRow{Kernel: TotalRow, TimeMs: total})
	rows = append(rows, groups...)
	return AggregatedReport{Rows: rows, TotalTimeMs: total}
}

// SummarizeMemory converts a profile's byte counters to megabytes.
func SummarizeMemory(p *ResourceProfile) MemoryReport {
	if p == nil {
		return MemoryReport{}
	}
	return MemoryReport{
		PeakMB: float64(p.PeakBytes) / bytesPerMB,
		NewMB:  float64(p.NewBytes) / bytesPerMB,
	}
}
