package validate

import (
	"fmt"
	"sort"
	"strings"
)

// AnomalyType names the kind of mismatch between statistics and schema.
type AnomalyType string

const (
	AnomalyMissingColumn          AnomalyType = "SCHEMA_MISSING_COLUMN"
	AnomalyNewColumn              AnomalyType = "SCHEMA_NEW_COLUMN"
	AnomalyUnexpectedType         AnomalyType = "UNEXPECTED_TYPE"
	AnomalyMissingValues          AnomalyType = "MISSING_VALUES"
	AnomalyOutOfRange             AnomalyType = "OUT_OF_RANGE"
	AnomalyUnexpectedStringValues AnomalyType = "UNEXPECTED_STRING_VALUES"
)

const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// SeverityFor maps an anomaly type to its severity.
func SeverityFor(t AnomalyType) string {
	switch t {
	case AnomalyMissingColumn, AnomalyUnexpectedType:
		return SeverityError
	case AnomalyMissingValues, AnomalyOutOfRange, AnomalyUnexpectedStringValues:
		return SeverityWarning
	case AnomalyNewColumn:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// Anomaly is one finding. Feature is the column path.
type Anomaly struct {
	Feature  string
	Type     AnomalyType
	Severity string
	Details  string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("Feature: %s, Anomaly Type: %s, Details: %s", a.Feature, a.Type, a.Details)
}

// Report lists anomalies. It is advisory and never persisted.
type Report struct {
	Anomalies []Anomaly
}

// Empty reports whether no anomaly was found.
func (r *Report) Empty() bool {
	return r == nil || len(r.Anomalies) == 0
}

// Features returns the distinct feature names with anomalies.
func (r *Report) Features() []string {
	if r == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, a := range r.Anomalies {
		if _, ok := seen[a.Feature]; ok {
			continue
		}
		seen[a.Feature] = struct{}{}
		out = append(out, a.Feature)
	}
	return out
}

func (r *Report) add(feature string, t AnomalyType, format string, args ...interface{}) {
	r.Anomalies = append(r.Anomalies, Anomaly{
		Feature:  feature,
		Type:     t,
		Severity: SeverityFor(t),
		Details:  fmt.Sprintf(format, args...),
	})
}

// Validate diffs observed statistics against schema.
func Validate(stats *Statistics, schema *Schema) *Report {
	r := &Report{}

	for _, f := range schema.Features {
		fs, ok := stats.Feature(f.Name)
		if !ok {
			r.add(f.Name, AnomalyMissingColumn, "column is in the schema but not in the data")
			continue
		}
		checkFeature(r, &f, fs)
	}

	for _, fs := range stats.Features {
		if _, ok := schema.Feature(fs.Name); !ok {
			r.add(fs.Name, AnomalyNewColumn, "new column (%s) not in the schema", fs.Kind)
		}
	}

	return r
}

func checkFeature(r *Report, f *Feature, fs *FeatureStatistics) {
	if f.Required && fs.Missing > 0 {
		r.add(f.Name, AnomalyMissingValues, "%d of %d values are missing", fs.Missing, fs.Count)
	}

	if fs.Present() == 0 {
		return
	}

	if !compatible(f.Type, fs.Kind) {
		r.add(f.Name, AnomalyUnexpectedType, "expected %s, observed %s", f.Type, fs.Kind)
		return
	}
	if fs.Invalid > 0 && f.Type != KindString {
		r.add(f.Name, AnomalyUnexpectedType, "%d values are not %s", fs.Invalid, f.Type)
	}

	if fs.Numeric() {
		if f.Min != nil && fs.Min < *f.Min {
			r.add(f.Name, AnomalyOutOfRange, "minimum %v is below %v", fs.Min, *f.Min)
		}
		if f.Max != nil && fs.Max > *f.Max {
			r.add(f.Name, AnomalyOutOfRange, "maximum %v is above %v", fs.Max, *f.Max)
		}
	}

	if len(f.Domain) > 0 {
		switch {
		case fs.Values == nil && fs.Distinct > len(f.Domain):
			r.add(f.Name, AnomalyUnexpectedStringValues, "%d distinct values for a domain of %d", fs.Distinct, len(f.Domain))
		case fs.Values != nil:
			if unexpected := outsideDomain(f.Domain, fs.Values); len(unexpected) > 0 {
				r.add(f.Name, AnomalyUnexpectedStringValues, "unexpected values: %s", strings.Join(unexpected, ", "))
			}
		}
	}
}

// compatible allows INT data where FLOAT is expected and any data where
// STRING is expected.
func compatible(expected, observed Kind) bool {
	switch {
	case expected == observed:
		return true
	case expected == KindString:
		return true
	case expected == KindFloat && observed == KindInt:
		return true
	default:
		return false
	}
}

func outsideDomain(domain, values []string) []string {
	allowed := make(map[string]struct{}, len(domain))
	for _, d := range domain {
		allowed[d] = struct{}{}
	}

	out := []string{}
	for _, v := range values {
		if _, ok := allowed[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
