// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package statusapi

import (
	"context"
	"log"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped out in tests.
var notify = daemon.SdNotify

// NotifyReady tells systemd the service has started. Outside systemd it
// does nothing.
func NotifyReady() {
	sent, err := notify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Printf("statusapi: sd_notify ready: %v", err)
		return
	}
	if sent {
		log.Println("statusapi: notified systemd")
	}
}

// NotifyStatus sets the one-line status systemctl shows for the unit.
func NotifyStatus(status string) {
	if _, err := notify(false, "STATUS="+status); err != nil {
		log.Printf("statusapi: sd_notify status: %v", err)
	}
}

// NotifyStopping tells systemd shutdown has begun.
func NotifyStopping() {
	notify(false, daemon.SdNotifyStopping)
}

// RunWatchdog pets the systemd watchdog at half its interval until ctx
// ends. Pings stop while alive reports false, so systemd restarts a node
// whose modem link has died. It returns at once when no watchdog is set.
func RunWatchdog(ctx context.Context, alive func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Printf("statusapi: watchdog: %v", err)
		return
	}
	if interval == 0 {
		return
	}
	watchdogLoop(ctx, interval/2, alive)
}

func watchdogLoop(ctx context.Context, period time.Duration, alive func() bool) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive != nil && !alive() {
				continue
			}
			notify(false, daemon.SdNotifyWatchdog)
		}
	}
}
