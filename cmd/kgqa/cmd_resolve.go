// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kgqa/services/resolve"
	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <keyword[:type[:context]]> ...",
		Short: "Resolve keywords to ranked Wikidata candidates",
		Long: "Each argument is a keyword with an optional type and disambiguating\n" +
			"context, colon-separated. Type is \"item\" (default) or \"property\".\n\n" +
			"Examples:\n" +
			"  kgqa resolve Einstein\n" +
			"  kgqa resolve \"Einstein:item:the physicist\" discoverer:property",
		Args: cobra.MinimumNArgs(1),
		Run:  runResolveCommand,
	}
}

func runResolveCommand(_ *cobra.Command, args []string) {
	keywords := make([]candidates.Keyword, 0, len(args))
	for _, arg := range args {
		kw, err := parseKeywordArg(arg)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		keywords = append(keywords, kw)
	}

	reqBody, err := json.Marshal(resolve.ResolveCandidatesRequest{
		Keywords: keywords,
		Lang:     langFlag,
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	httpResp, err := client.Post(serverBaseURL()+"/v1/resolve/candidates", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		log.Fatalf("Server returned HTTP %d: %s", httpResp.StatusCode, body)
	}

	var resp resolve.ResolveCandidatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	printCandidates(resp.Candidates)
}

// parseKeywordArg splits "value[:type[:context]]" into a keyword.
func parseKeywordArg(arg string) (candidates.Keyword, error) {
	parts := strings.SplitN(arg, ":", 3)
	kw := candidates.Keyword{Value: parts[0], Type: candidates.TypeItem}
	if kw.Value == "" {
		return kw, fmt.Errorf("empty keyword in %q", arg)
	}
	if len(parts) > 1 && parts[1] != "" {
		kw.Type = candidates.EntityType(parts[1])
		if !kw.Type.Valid() {
			return kw, fmt.Errorf("unknown type %q in %q (want item or property)", parts[1], arg)
		}
	}
	if len(parts) > 2 {
		kw.Context = parts[2]
	}
	return kw, nil
}

func printCandidates(resolved candidates.Map) {
	for keyword, records := range resolved {
		fmt.Printf("%s:\n", keyword)
		if len(records) == 0 {
			fmt.Println("  (no candidates)")
			continue
		}
		for _, r := range records {
			line := fmt.Sprintf("  %s  %s", r.ID, r.Label)
			if r.Description != "" {
				line += " - " + r.Description
			}
			if r.Score != 0 {
				line += fmt.Sprintf(" (score %.3f)", r.Score)
			}
			fmt.Println(line)
			for _, fact := range r.Neighbors {
				fmt.Println(fact)
			}
		}
	}
}
