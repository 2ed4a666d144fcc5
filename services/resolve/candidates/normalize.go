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

import "strings"

// =============================================================================
// Source Payload Normalization
// =============================================================================
//
// The two retrieval sources disagree about field names: the entity-search API
// returns {id, label, description}, while vector index payloads carry
// {qid, label|text, description, lang}. Each source gets one explicit
// normalization function here; adapters call it immediately on receipt so the
// merger and everything after it only ever sees canonical Records.

// FromSearchEntity normalizes one entity-search API result.
//
// Description:
//
//	Maps the wbsearchentities response shape onto a canonical Record.
//	Records without an identifier are unusable and are rejected.
//
// Outputs:
//
//	Record - The canonical record. Zero value when ok is false.
//	bool   - False when the payload has no usable identifier.
func FromSearchEntity(id, label, description string) (Record, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, false
	}
	return Record{
		ID:          id,
		Label:       strings.TrimSpace(label),
		Description: strings.TrimSpace(description),
	}, true
}

// FromVectorPayload normalizes one vector index hit.
//
// Description:
//
//	Vector payloads identify the entity as "qid" (the ingestion pipeline's
//	name for it) or occasionally "id". The human-readable text lives in
//	"label", "text", or "value" depending on the ingestion batch that wrote
//	it. First match wins per field; a record without an identifier is dropped.
//
// Inputs:
//
//	props - Raw payload properties as decoded JSON. May be nil.
//	score - Cosine similarity reported by the index.
//
// Outputs:
//
//	Record - The canonical record with Score set. Zero value when ok is false.
//	bool   - False when no usable identifier was found.
func FromVectorPayload(props map[string]interface{}, score float64) (Record, bool) {
	if props == nil {
		return Record{}, false
	}
	id := firstString(props, "qid", "id")
	if id == "" {
		return Record{}, false
	}
	return Record{
		ID:          id,
		Label:       firstString(props, "label", "text", "value"),
		Description: firstString(props, "description"),
		Score:       score,
	}, true
}

// firstString returns the first non-empty string value among the named keys.
func firstString(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}
