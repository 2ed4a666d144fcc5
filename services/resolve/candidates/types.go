// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package candidates defines the canonical record types flowing through the
// candidate resolution pipeline: extracted keywords, knowledge-graph candidate
// records, and the per-request candidate map. All adapters normalize their
// source-specific payloads into these types at the boundary; nothing
// heterogeneous propagates past this package.
package candidates

import "strings"

// EntityType constrains which Wikidata namespace a keyword is searched in.
type EntityType string

const (
	// TypeItem denotes a Wikidata item (Q-prefixed identifier, e.g. "Q42").
	TypeItem EntityType = "item"

	// TypeProperty denotes a Wikidata property (P-prefixed identifier, e.g. "P31").
	TypeProperty EntityType = "property"
)

// Valid reports whether t is one of the two known entity types.
func (t EntityType) Valid() bool {
	return t == TypeItem || t == TypeProperty
}

// Keyword is one extracted mention from the user's question, produced by the
// upstream NER stage.
//
// Description:
//
//	Value is the surface form to search for ("Einstein"). Type selects the
//	search namespace. Context is an optional short disambiguating phrase
//	("the physicist") appended to the search text for semantic matching.
//
// Thread Safety: Immutable input; safe to share.
type Keyword struct {
	Value   string     `json:"value"`
	Type    EntityType `json:"type"`
	Context string     `json:"context,omitempty"`
}

// SearchText builds the query string used for embedding-based matching:
// the keyword value plus its disambiguating context, when present.
func (k Keyword) SearchText() string {
	if k.Context == "" {
		return k.Value
	}
	return k.Value + " " + k.Context
}

// Record is one knowledge-graph candidate proposed for a keyword.
//
// Description:
//
//	ID is the stable graph identifier ("Q42", "P31") and is the record's
//	identity: two records with the same ID denote the same entity and are
//	merged, never duplicated. Score is source-specific (cosine similarity
//	for the semantic adapter and the re-ranker) and is not comparable
//	across sources. Neighbors is an ordered list of formatted one-hop fact
//	lines, populated only by the enricher, and only for item records.
type Record struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Score       float64  `json:"score,omitempty"`
	Neighbors   []string `json:"neighbors,omitempty"`
}

// IsItem reports whether the record identifies a Wikidata item (as opposed
// to a property). Only items are subject to graph-neighborhood enrichment.
func (r Record) IsItem() bool {
	return strings.HasPrefix(r.ID, "Q")
}

// CompareText is the text embedded for re-ranking: label plus description
// when one exists.
func (r Record) CompareText() string {
	if r.Description == "" {
		return r.Label
	}
	return r.Label + " " + r.Description
}

// Map is the per-request resolution result: keyword value → ranked candidate
// records. Rank order matters; IDs are unique within each list.
//
// A Map is request-scoped and never shared across questions. The engine
// populates disjoint keys concurrently under its own lock; after Resolve
// returns, the map is read-only.
type Map map[string][]Record

// IDs returns the distinct candidate identifiers across the whole map, in
// first-appearance order. Used for batch label lookups downstream.
func (m Map) IDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, records := range m {
		for _, r := range records {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r.ID)
		}
	}
	return out
}

// Truncate caps a candidate list at max entries, preserving order.
// Non-positive max returns the list unchanged.
func Truncate(records []Record, max int) []Record {
	if max <= 0 || len(records) <= max {
		return records
	}
	return records[:max]
}
