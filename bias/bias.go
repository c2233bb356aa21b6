// Package bias inspects datasets for skew between groups before they are
// loaded. Inspectors only read the dataset.
package bias

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"go.nownabe.dev/reviewloader/dataset"
)

// Inspector runs to completion or returns an error. It must not mutate the
// dataset.
type Inspector interface {
	Inspect(context.Context, *dataset.Dataset) error
}

// Func adapts a function to Inspector.
type Func func(context.Context, *dataset.Dataset) error

// Inspect calls f.
func (f Func) Inspect(ctx context.Context, ds *dataset.Dataset) error {
	return f(ctx, ds)
}

// Nop is an Inspector that does nothing.
var Nop Inspector = Func(func(context.Context, *dataset.Dataset) error { return nil })

// Finding is a group whose outcome or representation stands out.
type Finding struct {
	Group  string
	Rows   int
	Share  float64
	Mean   float64
	Reason string
}

// GroupDisparity compares the mean of OutcomeColumn across the values of
// GroupColumn.
type GroupDisparity struct {
	GroupColumn   string
	OutcomeColumn string

	// MaxDisparity is the largest allowed distance between a group mean and
	// the overall mean.
	MaxDisparity float64

	// MinShare is the smallest share of rows a group may hold.
	MinShare float64
}

type groupStat struct {
	rows  int
	sum   float64
	count int
}

// Inspect logs a warning per finding. Missing columns are skipped.
func (g *GroupDisparity) Inspect(ctx context.Context, ds *dataset.Dataset) error {
	l := log.Ctx(ctx)

	findings, ok := g.Findings(ds)
	if !ok {
		l.Debug().Msgf("bias check skipped: columns %q or %q not found", g.GroupColumn, g.OutcomeColumn)
		return ctx.Err()
	}

	for _, f := range findings {
		l.Warn().
			Str("group_column", g.GroupColumn).
			Str("group", f.Group).
			Int("rows", f.Rows).
			Float64("share", f.Share).
			Float64("mean", f.Mean).
			Msgf("possible bias: %s", f.Reason)
	}
	if len(findings) == 0 {
		l.Info().Msgf("no bias found across %s", g.GroupColumn)
	}

	return ctx.Err()
}

// Findings computes the groups that stand out. The second result is false
// when either column is absent.
func (g *GroupDisparity) Findings(ds *dataset.Dataset) ([]Finding, bool) {
	gi, oi := ds.Index(g.GroupColumn), ds.Index(g.OutcomeColumn)
	if gi < 0 || oi < 0 || ds.IsEmpty() {
		return nil, false
	}

	groups := map[string]*groupStat{}
	total, totalCount := 0.0, 0
	for _, r := range ds.Rows {
		key := strings.TrimSpace(r[gi])
		gs, ok := groups[key]
		if !ok {
			gs = &groupStat{}
			groups[key] = gs
		}
		gs.rows++

		v, err := strconv.ParseFloat(strings.TrimSpace(r[oi]), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		gs.sum += v
		gs.count++
		total += v
		totalCount++
	}

	overall := 0.0
	if totalCount > 0 {
		overall = total / float64(totalCount)
	}

	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Strings(names)

	findings := []Finding{}
	for _, name := range names {
		gs := groups[name]
		f := Finding{Group: name, Rows: gs.rows, Share: float64(gs.rows) / float64(ds.Len())}
		if gs.count > 0 {
			f.Mean = gs.sum / float64(gs.count)
		}

		switch {
		case g.MinShare > 0 && f.Share < g.MinShare:
			f.Reason = "group is under-represented"
		case g.MaxDisparity > 0 && gs.count > 0 && math.Abs(f.Mean-overall) > g.MaxDisparity:
			f.Reason = "group mean " + strconv.FormatFloat(f.Mean, 'f', 2, 64) +
				" differs from overall mean " + strconv.FormatFloat(overall, 'f', 2, 64)
		default:
			continue
		}

		findings = append(findings, f)
	}

	return findings, true
}
