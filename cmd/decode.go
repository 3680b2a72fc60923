// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/lpp"
)

var decodeRecords bool

var decodeCmd = &cobra.Command{
	Use:   "decode <hex payload>",
	Short: "Decode an uplink payload",
	Long: `Decode an uplink payload as received by the network server.

The payload is hex; spaces and colons are ignored. Count-prefixed node payloads
are decoded by default. Use --records for plain channel/type/value records.

Examples:
  tidewatch decode 01 13 00 01
  tidewatch decode --records 00:02:01:4a`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeRecords, "records", false, "Decode as plain records without a count prefix")
}

// parseHex accepts hex split by spaces or colons across args.
func parseHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	payload, err := parseHex(args)
	if err != nil {
		return err
	}

	fmt.Printf("Payload: %d bytes [% X]\n", len(payload), payload)
	if decodeRecords {
		records, err := lpp.DecodeRecords(payload)
		if err != nil {
			return err
		}
		fmt.Print(lpp.FormatRecords(records))
		return nil
	}

	u, err := lpp.Decode(payload)
	if err != nil {
		return err
	}
	fmt.Print(lpp.FormatUplink(u))
	return nil
}
