// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/trace"
)

var traceKinds []string

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Replay a recorded trace",
	Long: `Print the entries of a CBOR trace recorded by run or simulate with --trace.

Filter by entry kind with --kind (state, uplink, fault, serial).`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().StringSliceVar(&traceKinds, "kind", nil, "Only show these entry kinds")
}

func runTrace(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	want := map[string]bool{}
	for _, k := range traceKinds {
		want[strings.ToUpper(k)] = true
	}

	r := trace.NewReader(f)
	shown := 0
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("after %d entries: %w", shown, err)
		}
		if len(want) > 0 && !want[e.Kind.String()] {
			continue
		}
		fmt.Println(trace.FormatEntry(e))
		shown++
	}
	fmt.Printf("\n%d entries\n", shown)
	return nil
}
