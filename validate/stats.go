package validate

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.nownabe.dev/reviewloader/dataset"
)

// Kind is the value type observed in, or expected of, a feature.
type Kind string

const (
	KindInt       Kind = "INT"
	KindFloat     Kind = "FLOAT"
	KindBool      Kind = "BOOL"
	KindTimestamp Kind = "TIMESTAMP"
	KindString    Kind = "STRING"
)

const (
	// topValues bounds how many frequent values are kept per feature.
	topValues = 10
	// maxTrackedValues bounds the distinct values listed in Values.
	maxTrackedValues = 100
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ValueCount is a value and the number of rows holding it.
type ValueCount struct {
	Value string
	Count int
}

// FeatureStatistics summarizes one column.
type FeatureStatistics struct {
	Name    string
	Kind    Kind
	Count   int
	Missing int

	// Numeric features only.
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	// Values that did not parse as Kind. Only set for non-string kinds
	// observed as a minority.
	Invalid int

	Distinct int
	Top      []ValueCount
	// Values lists every distinct value, sorted, when there are at most
	// maxTrackedValues of them.
	Values []string
}

// Present returns the number of non-missing values.
func (f *FeatureStatistics) Present() int {
	return f.Count - f.Missing
}

// Numeric reports whether min/max/mean are meaningful.
func (f *FeatureStatistics) Numeric() bool {
	return f.Kind == KindInt || f.Kind == KindFloat
}

// Statistics summarizes a dataset.
type Statistics struct {
	Rows     int
	Features []FeatureStatistics
}

// Feature looks up a feature by name.
func (s *Statistics) Feature(name string) (*FeatureStatistics, bool) {
	for i := range s.Features {
		if s.Features[i].Name == name {
			return &s.Features[i], true
		}
	}
	return nil, false
}

// ComputeStatistics summarizes every column of ds.
func ComputeStatistics(ds *dataset.Dataset) *Statistics {
	stats := &Statistics{Rows: ds.Len(), Features: make([]FeatureStatistics, 0, len(ds.Header))}
	for _, name := range ds.Header {
		col, _ := ds.Column(name)
		stats.Features = append(stats.Features, featureStatistics(name, col))
	}
	return stats
}

func featureStatistics(name string, values []string) FeatureStatistics {
	fs := FeatureStatistics{Name: name, Count: len(values)}

	present := make([]string, 0, len(values))
	for _, v := range values {
		if isMissing(v) {
			fs.Missing++
			continue
		}
		present = append(present, strings.TrimSpace(v))
	}

	fs.Kind, fs.Invalid = inferKind(present)
	fs.Distinct, fs.Top, fs.Values = frequencies(present)

	if fs.Numeric() {
		nums := make([]float64, 0, len(present))
		for _, v := range present {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				nums = append(nums, f)
			}
		}
		fs.Min, fs.Max = minMax(nums)
		fs.Mean = mean(nums)
		fs.StdDev = math.Sqrt(variance(nums))
	}

	return fs
}

func isMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "nan", "none":
		return true
	default:
		return false
	}
}

// inferKind picks the narrowest kind that the majority of values parse as
// and returns how many values do not fit it.
func inferKind(values []string) (Kind, int) {
	if len(values) == 0 {
		return KindString, 0
	}

	var ints, floats, bools, stamps int
	for _, v := range values {
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			ints++
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			floats++
		}
		if isBool(v) {
			bools++
		}
		if isTimestamp(v) {
			stamps++
		}
	}

	n := len(values)
	majority := func(c int) bool { return c*2 > n }

	switch {
	case majority(bools) && bools >= floats:
		return KindBool, n - bools
	case majority(ints) && ints == floats:
		return KindInt, n - ints
	case majority(floats):
		return KindFloat, n - floats
	case majority(stamps):
		return KindTimestamp, n - stamps
	default:
		return KindString, 0
	}
}

func isBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	default:
		return false
	}
}

func isTimestamp(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func frequencies(values []string) (int, []ValueCount, []string) {
	counts := map[string]int{}
	for _, v := range values {
		counts[v]++
	}

	var distinct []string
	top := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		top = append(top, ValueCount{Value: v, Count: c})
		if len(counts) <= maxTrackedValues {
			distinct = append(distinct, v)
		}
	}
	sort.Strings(distinct)

	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	if len(top) > topValues {
		top = top[:topValues]
	}

	return len(counts), top, distinct
}

func minMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// variance is the population variance computed in a single pass.
func variance(x []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	sum, sumSq := 0.0, 0.0
	for _, v := range x {
		sum += v
		sumSq += v * v
	}
	m := sum / n
	v := sumSq/n - m*m
	if v < 0 {
		return 0
	}
	return v
}
