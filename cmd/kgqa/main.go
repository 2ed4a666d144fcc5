// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kgqa is the CLI client for the candidate resolution server.
//
// Usage:
//
//	kgqa resolve "Einstein:item" "discoverer:property" --lang en
//	kgqa labels Q937 P31
//	kgqa sparql 'ASK { wd:Q937 wdt:P31 wd:Q5 }'
//
// The server address comes from --server or the KGQA_SERVER_URL environment
// variable, defaulting to http://localhost:8080.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverFlag and langFlag hold the global flag values shared by subcommands.
var (
	serverFlag string
	langFlag   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kgqa",
		Short: "Client for the candidate resolution server",
		Long: "kgqa talks to a running resolution server to turn extracted keywords\n" +
			"into ranked Wikidata candidates, look up entity labels, and run\n" +
			"ad-hoc SPARQL queries through the server's rate-gated client.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Resolution server URL (default $KGQA_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "en", "Language code for labels and search")

	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newLabelsCommand())
	rootCmd.AddCommand(newSPARQLCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// serverBaseURL resolves the server address from flag, environment, or
// default, in that order.
func serverBaseURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if env := os.Getenv("KGQA_SERVER_URL"); env != "" {
		return env
	}
	return "http://localhost:8080"
}
