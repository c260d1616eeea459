// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/config"
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, _ := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: "mentor-chat",
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, _, err := buildCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}

	st, err := registry.CreateSession(designBrief)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	fmt.Printf("Session %s (domain: %s)\n", st.ID, st.Domain)
	if designBrief != "" {
		fmt.Printf("Brief registered; detected building type: %s\n", st.ConversationContext.DetectedBuildingType)
	}
	fmt.Println("Type your message, or /quit to exit.")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			break
		}

		result, err := registry.Chat(ctx, st.ID, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
				break
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			if result.Response != "" {
				fmt.Printf("\nmentor> %s\n\n", result.Response)
			}
			continue
		}

		fmt.Printf("\nmentor> %s\n", result.Response)
		fmt.Printf("        [route: %s, agents: %s]\n\n", result.Route, strings.Join(result.AgentsUsed, ", "))
	}
	return scanner.Err()
}
