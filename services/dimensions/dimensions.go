// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dimensions is the single source of truth for the report dimensions
// an incremental mechanism may carry.
//
// The registry is a static, ordered table mapping each dimension name to its
// analysis layer. It is consumed by the contract validator (layer
// consistency, supported-dimension checks) and by the sync engine (display
// ordering). Any dimension absent from the registry is an invalid dimension,
// never a silent no-op.
package dimensions

import (
	"sort"
	"strings"
)

// Layer is the analysis tier a dimension belongs to.
//
// L2 dimensions describe observed patterns; L3 dimensions describe causal
// mechanisms and interventions built on top of them.
type Layer string

const (
	LayerL2 Layer = "L2"
	LayerL3 Layer = "L3"
)

// entry pairs a dimension with its layer. Order in the table is the
// canonical display order, foundational diagnosis first.
type entry struct {
	Name  string
	Layer Layer
}

var registry = []entry{
	{"incremental-trigger-chains", LayerL2},
	{"incremental-first-pass-diagnostics", LayerL2},
	{"incremental-coverage-gap", LayerL2},
	{"incremental-task-stratification", LayerL2},
	{"incremental-root-causes", LayerL3},
	{"incremental-change-delta", LayerL3},
	{"incremental-interventions", LayerL3},
	{"incremental-intervention-impact", LayerL3},
	{"incremental-validation-loop", LayerL3},
	{"incremental-reuse-assets", LayerL3},
	{"incremental-compounding", LayerL3},
}

var (
	layerByName = func() map[string]Layer {
		m := make(map[string]Layer, len(registry))
		for _, e := range registry {
			m[e.Name] = e.Layer
		}
		return m
	}()

	orderByName = func() map[string]int {
		m := make(map[string]int, len(registry))
		for i, e := range registry {
			m[e.Name] = i
		}
		return m
	}()
)

// LayerOf returns the expected layer for a dimension. The second return is
// false when the dimension is not in the registry.
func LayerOf(dimension string) (Layer, bool) {
	layer, ok := layerByName[strings.TrimSpace(dimension)]
	return layer, ok
}

// IsSupported reports whether a dimension exists in the registry.
func IsSupported(dimension string) bool {
	_, ok := layerByName[strings.TrimSpace(dimension)]
	return ok
}

// DisplayOrder returns all dimension names in canonical display order.
// The returned slice is a copy; callers may mutate it freely.
func DisplayOrder() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.Name
	}
	return names
}

// Supported returns a sorted list of dimension names, for error messages.
func Supported() []string {
	names := DisplayOrder()
	sort.Strings(names)
	return names
}

// Rank returns the canonical sort rank for a dimension. Unknown dimensions
// rank after all known ones so they sort last rather than disappearing.
func Rank(dimension string) int {
	if rank, ok := orderByName[strings.TrimSpace(dimension)]; ok {
		return rank
	}
	return len(registry)
}

// SortReports stably orders a report slice by registry rank. The dimension
// of each element is read through dimOf so this package stays free of the
// document types.
func SortReports[T any](reports []T, dimOf func(T) string) {
	sort.SliceStable(reports, func(i, j int) bool {
		return Rank(dimOf(reports[i])) < Rank(dimOf(reports[j]))
	})
}
