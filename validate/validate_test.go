package validate_test

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.nownabe.dev/reviewloader/dataset"
	"go.nownabe.dev/reviewloader/validate"
)

func reviews(t *testing.T) *dataset.Dataset {
	t.Helper()

	ds, err := dataset.New(
		[]string{"parent_asin", "rating", "verified_purchase", "sentiment_label", "timestamp", "text"},
		[][]string{
			{"B001", "5", "true", "positive", "2023-01-02 10:00:00", "great"},
			{"B001", "4.5", "false", "positive", "2023-01-03 11:00:00", "good"},
			{"B002", "1", "true", "negative", "2023-01-04 12:00:00", "bad"},
			{"B002", "3", "true", "neutral", "2023-01-05 13:00:00", ""},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	return ds
}

func hasAnomaly(r *validate.Report, feature string, typ validate.AnomalyType) bool {
	for _, a := range r.Anomalies {
		if a.Feature == feature && a.Type == typ {
			return true
		}
	}
	return false
}

func TestComputeStatistics(t *testing.T) {
	t.Parallel()

	stats := validate.ComputeStatistics(reviews(t))
	if stats.Rows != 4 {
		t.Errorf("rows should be 4, but %d", stats.Rows)
	}
	if len(stats.Features) != 6 {
		t.Fatalf("Size of features should be 6, but %d", len(stats.Features))
	}

	rating, ok := stats.Feature("rating")
	if !ok {
		t.Fatal("rating should be found")
	}
	if rating.Kind != validate.KindFloat {
		t.Errorf("rating should be %s, but %s", validate.KindFloat, rating.Kind)
	}
	if rating.Min != 1.0 || rating.Max != 5.0 {
		t.Errorf("rating range should be [1, 5], but [%v, %v]", rating.Min, rating.Max)
	}
	if math.Abs(rating.Mean-3.375) > 1e-9 {
		t.Errorf("rating mean should be 3.375, but %v", rating.Mean)
	}

	if vp, _ := stats.Feature("verified_purchase"); vp.Kind != validate.KindBool {
		t.Errorf("verified_purchase should be %s, but %s", validate.KindBool, vp.Kind)
	}

	if ts, _ := stats.Feature("timestamp"); ts.Kind != validate.KindTimestamp {
		t.Errorf("timestamp should be %s, but %s", validate.KindTimestamp, ts.Kind)
	}

	text, _ := stats.Feature("text")
	if text.Kind != validate.KindString {
		t.Errorf("text should be %s, but %s", validate.KindString, text.Kind)
	}
	if text.Missing != 1 || text.Present() != 3 {
		t.Errorf("text should have 1 missing and 3 present, but %d and %d", text.Missing, text.Present())
	}

	asin, _ := stats.Feature("parent_asin")
	if asin.Distinct != 2 {
		t.Errorf("parent_asin should have 2 distinct values, but %d", asin.Distinct)
	}
	if !reflect.DeepEqual(asin.Values, []string{"B001", "B002"}) {
		t.Errorf("parent_asin values should be [B001 B002], but %v", asin.Values)
	}
	if top := (validate.ValueCount{Value: "B001", Count: 2}); asin.Top[0] != top {
		t.Errorf("top value should be %v, but %v", top, asin.Top[0])
	}
}

func TestComputeStatistics_IntWithInvalid(t *testing.T) {
	t.Parallel()

	ds, err := dataset.New([]string{"a"}, [][]string{{"1"}, {"2"}, {"x"}})
	if err != nil {
		t.Fatal(err)
	}

	fs, _ := validate.ComputeStatistics(ds).Feature("a")
	if fs.Kind != validate.KindInt {
		t.Errorf("a should be %s, but %s", validate.KindInt, fs.Kind)
	}
	if fs.Invalid != 1 {
		t.Errorf("invalid should be 1, but %d", fs.Invalid)
	}
	if fs.Max != 2.0 {
		t.Errorf("max should be 2, but %v", fs.Max)
	}
}

func TestInferSchema_NoAnomaliesOnSameData(t *testing.T) {
	t.Parallel()

	stats := validate.ComputeStatistics(reviews(t))
	schema := validate.InferSchema(stats)

	rating, ok := schema.Feature("rating")
	if !ok {
		t.Fatal("rating should be in the schema")
	}
	if rating.Type != validate.KindFloat {
		t.Errorf("rating should be %s, but %s", validate.KindFloat, rating.Type)
	}
	if !rating.Required {
		t.Error("rating should be required")
	}
	if rating.Min != nil {
		t.Errorf("rating should have no lower bound, but %v", *rating.Min)
	}

	if text, _ := schema.Feature("text"); text.Required {
		t.Error("text should not be required")
	}

	if report := validate.Validate(stats, schema); !report.Empty() {
		t.Errorf("unexpected anomalies: %v", report.Anomalies)
	}
}

func TestValidate_OutOfRange(t *testing.T) {
	t.Parallel()

	schema, err := validate.LoadSchema(filepath.Join("testdata", "reviews_schema.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	ds := reviews(t)
	ds.Rows[2][1] = "11"

	report := validate.Validate(validate.ComputeStatistics(ds), schema)
	if report.Empty() {
		t.Fatal("report should not be empty")
	}

	found := false
	for _, a := range report.Anomalies {
		if a.Feature == "rating" && a.Type == validate.AnomalyOutOfRange {
			found = true
			if a.Severity != validate.SeverityWarning {
				t.Errorf("severity should be %s, but %s", validate.SeverityWarning, a.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected OUT_OF_RANGE for rating, got %v", report.Anomalies)
	}
}

func TestValidate_Anomalies(t *testing.T) {
	t.Parallel()

	schema, err := validate.ParseSchema([]byte(`
features:
  - name: rating
    type: INT
    required: true
  - name: sentiment_label
    domain: [negative, positive]
  - name: seller_id
    required: true
`))
	if err != nil {
		t.Fatal(err)
	}

	stats := validate.ComputeStatistics(reviews(t))
	report := validate.Validate(stats, schema)

	types := map[string][]validate.AnomalyType{}
	for _, a := range report.Anomalies {
		types[a.Feature] = append(types[a.Feature], a.Type)
	}

	expected := map[string][]validate.AnomalyType{
		"rating":          {validate.AnomalyUnexpectedType},
		"sentiment_label": {validate.AnomalyUnexpectedStringValues},
		"seller_id":       {validate.AnomalyMissingColumn},
		"text":            {validate.AnomalyNewColumn},
	}
	for feature, want := range expected {
		if !reflect.DeepEqual(types[feature], want) {
			t.Errorf("anomalies of %s should be %v, but %v", feature, want, types[feature])
		}
	}
}

func TestValidate_MissingValues(t *testing.T) {
	t.Parallel()

	schema := &validate.Schema{Features: []validate.Feature{{Name: "text", Type: validate.KindString, Required: true}}}
	report := validate.Validate(validate.ComputeStatistics(reviews(t)), schema)

	if !hasAnomaly(report, "text", validate.AnomalyMissingValues) {
		t.Errorf("expected MISSING_VALUES for text, got %v", report.Anomalies)
	}
}

func TestParseSchema_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no name":      "features:\n  - type: INT\n",
		"unknown type": "features:\n  - name: a\n    type: DECIMAL\n",
		"min over max": "features:\n  - name: a\n    type: INT\n    min: 5\n    max: 1\n",
		"broken yaml":  "features: [",
	}

	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := validate.ParseSchema([]byte(doc)); err == nil {
				t.Error("expected error but no error occurred")
			}
		})
	}
}

func TestSchemaMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	schema := validate.InferSchema(validate.ComputeStatistics(reviews(t)))
	b, err := schema.Marshal()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	back, err := validate.ParseSchema(b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(schema, back) {
		t.Errorf("schema should survive a round trip:\n%s", b)
	}
}

func TestVisualize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), validate.DefaultVisualizationPath)
	if err := validate.Visualize(validate.ComputeStatistics(reviews(t)), path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Size() == 0 {
		t.Error("chart should not be empty")
	}

	if err := validate.Visualize(&validate.Statistics{}, path); err == nil {
		t.Error("empty statistics should not render")
	}
}
