package benchmark

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestAggregateTiesKeepFirstSeenOrder(t *testing.T) {
	samples := ParseExtraInfo("Relu: 1.2, Relu: 2.8, BadEntry, Sigmoid: notanumber, Add: 4.0")
	got := Aggregate(samples)
	want := []KernelRow{{TotalRow, 8}, {"Relu", 4}, {"Add", 4}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("rows = %+v, want %+v", got.Rows, want)
	}
	if got.TotalTimeMs != 8 {
		t.Fatalf("total = %v, want 8", got.TotalTimeMs)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if len(got.Rows) != 1 || got.Rows[0].Kernel != TotalRow || got.Rows[0].TimeMs != 0 || got.TotalTimeMs != 0 {
		t.Fatalf("Aggregate(nil) = %+v", got)
	}
}

func TestAggregateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	names := []string{"MatMul", "Add", "Relu", "Conv2D", "Softmax"}
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(30)
		samples := make([]ParsedKernelSample, n)
		var sum float64
		for i := range samples {
			samples[i] = ParsedKernelSample{Kernel: names[rng.Intn(len(names))], TimeMs: float64(rng.Intn(1000)) / 10}
			sum += samples[i].TimeMs
		}

		report := Aggregate(samples)
		if report.Rows[0].Kernel != TotalRow || report.Rows[0].TimeMs != report.TotalTimeMs {
			t.Fatalf("total row %+v does not match total %v", report.Rows[0], report.TotalTimeMs)
		}
		if math.Abs(report.TotalTimeMs-sum) > 1e-9 {
			t.Fatalf("total %v != sum %v", report.TotalTimeMs, sum)
		}

		seen := map[string]bool{}
		var groupSum float64
		for i, row := range report.Rows[1:] {
			if seen[row.Kernel] {
				t.Fatalf("duplicate kernel %q in %+v", row.Kernel, report.Rows)
			}
			seen[row.Kernel] = true
			groupSum += row.TimeMs
			if i > 0 && row.TimeMs > report.Rows[i].TimeMs {
				t.Fatalf("rows not descending: %+v", report.Rows)
			}
		}
		if math.Abs(groupSum-report.TotalTimeMs) > 1e-9 {
			t.Fatalf("group sum %v != total %v", groupSum, report.TotalTimeMs)
		}
	}
}

func TestSummarizeMemory(t *testing.T) {
	got := SummarizeMemory(&ResourceProfile{PeakBytes: 2097152, NewBytes: 1048576})
	if got != (MemoryReport{PeakMB: 2, NewMB: 1}) {
		t.Fatalf("SummarizeMemory = %+v", got)
	}
	if got := SummarizeMemory(nil); got != (MemoryReport{}) {
		t.Fatalf("SummarizeMemory(nil) = %+v", got)
	}
}

func TestAverage(t *testing.T) {
	avg, err := Average([]IterationSample{{10}, {20}, {30}})
	if err != nil || avg != 20 {
		t.Fatalf("Average = %v, %v; want 20", avg, err)
	}
	avg, err = Average([]IterationSample{{7.25}})
	if err != nil || avg != 7.25 {
		t.Fatalf("Average single = %v, %v", avg, err)
	}
	if _, err := Average(nil); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
