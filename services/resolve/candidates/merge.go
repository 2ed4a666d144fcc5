// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package candidates

// Merge unions two candidate lists, deduplicating by ID.
//
// Description:
//
//	Walks the concatenation of a then b. Output order is determined by the
//	first occurrence of each ID; field values come from the last occurrence
//	(later sources overwrite earlier ones), except that a populated
//	Description or Neighbors from an earlier record survives a later record
//	that lacks one. The most complete record wins field by field.
//
//	Records with an empty ID are contract violations from a misbehaving
//	source and are dropped silently. The output is never re-sorted by
//	score: traversal order is the only ordering promise.
//
// Outputs:
//
//	[]Record - Deduplicated union. Each ID appears exactly once. Never nil
//	           when either input is non-empty.
func Merge(a, b []Record) []Record {
	index := make(map[string]int, len(a)+len(b))
	out := make([]Record, 0, len(a)+len(b))

	for _, lists := range [2][]Record{a, b} {
		for _, r := range lists {
			if r.ID == "" {
				continue
			}
			i, seen := index[r.ID]
			if !seen {
				index[r.ID] = len(out)
				out = append(out, r)
				continue
			}
			prev := out[i]
			// Last-seen wins, but never trade a populated field for an empty one.
			if r.Label == "" {
				r.Label = prev.Label
			}
			if r.Description == "" {
				r.Description = prev.Description
			}
			if len(r.Neighbors) == 0 {
				r.Neighbors = prev.Neighbors
			}
			out[i] = r
		}
	}
	return out
}
