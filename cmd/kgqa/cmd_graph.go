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
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kgqa/services/resolve"
	"github.com/AleutianAI/kgqa/services/resolve/wikidata"
)

func newLabelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "labels <id> ...",
		Short: "Resolve entity IDs to human-readable labels",
		Args:  cobra.MinimumNArgs(1),
		Run:   runLabelsCommand,
	}
}

func runLabelsCommand(_ *cobra.Command, args []string) {
	query := url.Values{
		"ids":  {strings.Join(args, "|")},
		"lang": {langFlag},
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	httpResp, err := client.Get(serverBaseURL() + "/v1/resolve/labels?" + query.Encode())
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

	var resp resolve.LabelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}

	for _, id := range args {
		if label, ok := resp.Labels[id]; ok {
			fmt.Printf("%s\t%s\n", id, label)
		} else {
			fmt.Printf("%s\t(no label)\n", id)
		}
	}
}

func newSPARQLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sparql <query>",
		Short: "Run a read query through the server's rate-gated client",
		Args:  cobra.ExactArgs(1),
		Run:   runSPARQLCommand,
	}
}

func runSPARQLCommand(_ *cobra.Command, args []string) {
	reqBody, err := json.Marshal(resolve.SPARQLRequest{Query: args[0]})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	httpResp, err := client.Post(serverBaseURL()+"/v1/resolve/sparql", "application/json", bytes.NewReader(reqBody))
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

	var result wikidata.QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}

	if result.Boolean != nil {
		fmt.Println(*result.Boolean)
		return
	}
	for i, binding := range result.Bindings {
		vars := make([]string, 0, len(binding))
		for name := range binding {
			vars = append(vars, name)
		}
		sort.Strings(vars)
		fmt.Printf("row %d:\n", i+1)
		for _, name := range vars {
			fmt.Printf("  %s = %s\n", name, binding[name].Value)
		}
	}
}
