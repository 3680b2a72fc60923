// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/hal/uart"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

var modemCmd = &cobra.Command{
	Use:   "modem",
	Short: "Talk to an RN2483 modem directly",
	Long: `Commands for bringing up and debugging the modem link without running the
node. All of them use --port or --url.`,
}

var modemLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Display modem output as it arrives",
	Long: `Continuously display lines received from the modem with a timestamp and
their response classification.

Supports both serial and WebSocket connections.`,
	RunE: runModemLog,
}

var modemProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Train auto-baud and read the modem identity",
	Long: `Send the break and auto-baud byte the modem needs after power-up, then
read its firmware version, hardware EUI and application EUI.`,
	RunE: runModemProbe,
}

var modemSendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one command line and print the response",
	Long: `Send a raw command such as "mac get dr" and print the response line.
Commands with a radio effect (join, mac tx) also wait for their second line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runModemSend,
}

func init() {
	rootCmd.AddCommand(modemCmd)
	modemCmd.AddCommand(modemLogCmd)
	modemCmd.AddCommand(modemProbeCmd)
	modemCmd.AddCommand(modemSendCmd)
}

func runModemLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Tidewatch - Modem Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fmt.Printf("[%s] %-15s %s\n",
			time.Now().Format("01/02/06 15:04:05.000"), rn2483.Classify(line), line)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Read error: %v", err)
		return err
	}
	log.Printf("Connection closed")
	return nil
}

// openModem opens the connection and wires a transport and driver over it.
func openModem() (*uart.Peripheral, *transport.Transport, *rn2483.Modem, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, nil, nil, "", err
	}
	periph := uart.New(conn)
	faults := fault.RaiserFunc(func(code fault.Code) {
		log.Printf("link fault: %s", code)
	})
	link := transport.New(periph, faults, transport.Options{})
	periph.Attach(link)
	periph.Start()
	return periph, link, rn2483.New(link), connInfo, nil
}

func runModemProbe(cmd *cobra.Command, args []string) error {
	periph, link, modem, connInfo, err := openModem()
	if err != nil {
		return err
	}
	defer periph.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	modem.Init()

	version, st := modem.GetSystemVersion()
	if st != rn2483.DataReturned {
		return fmt.Errorf("no version response (%s): check wiring, power and baud rate", st)
	}
	hweui, _ := modem.GetHardwareEUI()
	appeui, _ := modem.GetApplicationEUI()

	fmt.Printf("Firmware:        %s\n", version)
	fmt.Printf("Hardware EUI:    %s\n", hweui)
	fmt.Printf("Application EUI: %s\n", appeui)
	fmt.Printf("Link:            %s\n", link.Statistics())
	return nil
}

// twoLineCommands answer "ok" and then report their outcome separately.
var twoLineCommands = []string{"mac join ", "mac tx "}

func runModemSend(cmd *cobra.Command, args []string) error {
	periph, link, modem, _, err := openModem()
	if err != nil {
		return err
	}
	defer periph.Close()

	line := strings.Join(args, " ")
	modem.Init()
	link.ClearBuffers()
	if link.SendAndAwait([]byte(line+"\r\n")) != transport.StatusSent {
		return fmt.Errorf("no response to %q", line)
	}
	resp := strings.TrimSpace(link.ReadLine())
	fmt.Printf("%-15s %s\n", rn2483.Classify(resp), resp)

	if rn2483.Classify(resp) != rn2483.MacOK {
		return nil
	}
	for _, prefix := range twoLineCommands {
		if strings.HasPrefix(line, prefix) {
			if link.AwaitResponse() != transport.StatusReceived {
				return fmt.Errorf("no result for %q", line)
			}
			resp = strings.TrimSpace(link.ReadLine())
			fmt.Printf("%-15s %s\n", rn2483.Classify(resp), resp)
		}
	}
	return nil
}
