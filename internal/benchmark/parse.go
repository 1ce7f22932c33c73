package benchmark

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericPrefix matches the leading decimal number of a time field, so "12.5ms"
// reads as 12.5 and "abc" reads as nothing.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseKernelEvents decodes the "name: time" pairs carried in each event's
// ExtraInfo. Segments without a colon, with an empty name, or whose time is not a
// finite number are skipped. It never fails.
func ParseKernelEvents(events []KernelEvent) []ParsedKernelSample {
	samples := make([]ParsedKernelSample, 0, len(events))
	for _, ev := range events {
		samples = appendSamples(samples, ev.ExtraInfo)
	}
	return samples
}

// ParseExtraInfo decodes a single ExtraInfo string.
func ParseExtraInfo(info string) []ParsedKernelSample {
	return appendSamples(nil, info)
}

func appendSamples(dst []ParsedKernelSample, info string) []ParsedKernelSample {
	if strings.TrimSpace(info) == "" {
		return dst
	}
	for _, segment := range strings.Split(info, ",") {
		name, rawTime, ok := strings.Cut(strings.TrimSpace(segment), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ms, ok := parseTime(rawTime)
		if !ok {
			continue
		}
		dst = append(dst, ParsedKernelSample{Kernel: name, TimeMs: ms})
	}
	return dst
}

func parseTime(raw string) (float64, bool) {
	match := numericPrefix.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
