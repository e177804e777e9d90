package checker

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// separatingDimension returns the first constraint dimension, in order of
// appearance, whose combined constraints from a and b cannot all hold. It
// returns false when the two sets can hold together.
func separatingDimension(a, b []model.Constraint) (string, bool) {
	var order []string
	byDim := make(map[string][]model.Constraint)
	for _, c := range append(append([]model.Constraint(nil), a...), b...) {
		if _, ok := byDim[c.Type]; !ok {
			order = append(order, c.Type)
		}
		byDim[c.Type] = append(byDim[c.Type], c)
	}
	for _, dim := range order {
		if !satisfiable(byDim[dim]) {
			return dim, true
		}
	}
	return "", false
}

// values splits a constraint value; "in" takes a comma-separated list.
func values(c model.Constraint) []string {
	if c.Operator != model.OpIn {
		return []string{strings.TrimSpace(c.Value)}
	}
	var out []string
	for _, v := range strings.Split(c.Value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// number parses plain numbers and Go durations (as seconds).
func number(s string) (float64, bool) {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		return f, true
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d.Seconds(), true
	}
	return 0, false
}

func allNumeric(cs []model.Constraint) bool {
	for _, c := range cs {
		for _, v := range values(c) {
			if _, ok := number(v); !ok {
				return false
			}
		}
	}
	return true
}

// satisfiable reports whether one value can meet every constraint in cs.
// All constraints share a dimension.
func satisfiable(cs []model.Constraint) bool {
	if allNumeric(cs) {
		return numericSatisfiable(cs)
	}
	return stringSatisfiable(cs)
}

// stringSatisfiable handles eq, neq and in over opaque tokens. Ordering
// operators carry no meaning for tokens and never restrict.
func stringSatisfiable(cs []model.Constraint) bool {
	var candidates map[string]bool
	excluded := make(map[string]bool)
	restrict := func(vals []string) {
		next := make(map[string]bool)
		for _, v := range vals {
			if candidates == nil || candidates[v] {
				next[v] = true
			}
		}
		candidates = next
	}
	for _, c := range cs {
		switch c.Operator {
		case model.OpEq, model.OpIn:
			restrict(values(c))
		case model.OpNeq:
			excluded[strings.TrimSpace(c.Value)] = true
		}
	}
	if candidates == nil {
		return true
	}
	for v := range candidates {
		if !excluded[v] {
			return true
		}
	}
	return false
}

type interval struct {
	lo, hi         float64
	loOpen, hiOpen bool
}

func (iv *interval) above(v float64, open bool) {
	if v > iv.lo || (v == iv.lo && open) {
		iv.lo, iv.loOpen = v, open
	}
}

func (iv *interval) below(v float64, open bool) {
	if v < iv.hi || (v == iv.hi && open) {
		iv.hi, iv.hiOpen = v, open
	}
}

func (iv *interval) contains(v float64) bool {
	if v < iv.lo || (v == iv.lo && iv.loOpen) {
		return false
	}
	if v > iv.hi || (v == iv.hi && iv.hiOpen) {
		return false
	}
	return true
}

func numericSatisfiable(cs []model.Constraint) bool {
	iv := interval{lo: math.Inf(-1), hi: math.Inf(1), loOpen: true, hiOpen: true}
	var candidates map[float64]bool
	excluded := make(map[float64]bool)
	restrict := func(vals []string) {
		next := make(map[float64]bool)
		for _, s := range vals {
			v, _ := number(s)
			if candidates == nil || candidates[v] {
				next[v] = true
			}
		}
		candidates = next
	}

	for _, c := range cs {
		v, _ := number(strings.TrimSpace(c.Value))
		switch c.Operator {
		case model.OpEq, model.OpIn:
			restrict(values(c))
		case model.OpNeq:
			excluded[v] = true
		case model.OpLt:
			iv.below(v, true)
		case model.OpLteq:
			iv.below(v, false)
		case model.OpGt:
			iv.above(v, true)
		case model.OpGteq:
			iv.above(v, false)
		}
	}

	if candidates != nil {
		for v := range candidates {
			if iv.contains(v) && !excluded[v] {
				return true
			}
		}
		return false
	}
	if iv.lo < iv.hi {
		return true
	}
	return iv.lo == iv.hi && !iv.loOpen && !iv.hiOpen && !excluded[iv.lo]
}
