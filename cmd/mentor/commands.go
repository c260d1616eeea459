// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	designBrief string
	tracesMode  string

	rootCmd = &cobra.Command{
		Use:   "mentor",
		Short: "A multi-agent mentoring service for architecture students",
		Long: `Mentor runs a multi-agent educational core: each student message is
classified, routed to specialist agents (Socratic tutor, domain expert,
cognitive coach, analysis), and the agent outputs are synthesized into
one pedagogically sound reply.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the mentor HTTP service",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive mentoring session in the terminal",
		Long: `Chat starts a local session against the in-process core, without the
HTTP layer. Requires OPENAI_API_KEY for generated responses; without it
the core degrades to template and retrieval-only output.`,
		RunE: runChat, // Defined in cmd_chat.go
	}
)

func init() {
	serveCmd.Flags().StringVar(&tracesMode, "traces", "", "trace exporter (stdout or none; overrides OTEL_TRACES_EXPORTER)")
	rootCmd.AddCommand(serveCmd)

	chatCmd.Flags().StringVar(&designBrief, "brief", "", "design brief to seed the session with")
	rootCmd.AddCommand(chatCmd)
}
