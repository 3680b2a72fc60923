// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package statusapi serves the node's state over HTTP. In simulation it
// also exposes routes that press buttons, shake the buoy and cut the cable.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/transport"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// MaxShake bounds the accelerometer events one request may inject.
const MaxShake = 1000

// Machine is the state source.
type Machine interface {
	Snapshot() node.Snapshot
}

// Link reports serial link counters.
type Link interface {
	Statistics() transport.Statistics
}

// Radio reports the session state.
type Radio interface {
	Status() lora.Status
}

// Faults reports raised faults.
type Faults interface {
	Last() (fault.Code, bool)
	Count() uint64
}

// Controls are the simulation hooks. Nil fields disable their routes.
type Controls struct {
	Post        func(ev wake.Event)
	Shake       func(n int)
	CutCable    func()
	RepairCable func()
}

// Options configures the router. Only Machine is required.
type Options struct {
	Machine  Machine
	Link     Link
	Radio    Radio
	Faults   Faults
	Controls *Controls
	Now      func() time.Time
}

// Handler holds the router's data sources.
type Handler struct {
	opts    Options
	started time.Time
}

// NewRouter builds the chi router.
func NewRouter(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Handler{opts: opts, started: opts.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	if c := opts.Controls; c != nil {
		r.Route("/sim", func(r chi.Router) {
			if c.Post != nil {
				r.Post("/button/{id}", h.PressButton)
				r.Post("/timer", h.FireTimer)
			}
			if c.Shake != nil {
				r.Post("/shake/{n}", h.Shake)
			}
			if c.CutCable != nil {
				r.Post("/cable/cut", h.cable(c.CutCable, "cable cut"))
			}
			if c.RepairCable != nil {
				r.Post("/cable/repair", h.cable(c.RepairCable, "cable repaired"))
			}
		})
	}
	return r
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}

func successResponse(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": message,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "tidewatch",
		"uptime_s": int64(h.opts.Now().Sub(h.started) / time.Second),
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State         string        `json:"state"`
	BatchCount    int           `json:"batch_count"`
	StormDetected bool          `json:"storm_detected"`
	AccumulatedS  int64         `json:"accumulated_s"`
	Steps         uint64        `json:"steps"`
	LastWake      string        `json:"last_wake"`
	LastCauses    string        `json:"last_causes"`
	Radio         string        `json:"radio,omitempty"`
	Faults        *FaultSummary `json:"faults,omitempty"`
	Link          *LinkCounters `json:"link,omitempty"`
}

// FaultSummary is the fault part of a status response.
type FaultSummary struct {
	Count    uint64 `json:"count"`
	Last     uint8  `json:"last,omitempty"`
	LastName string `json:"last_name,omitempty"`
	LastBand string `json:"last_band,omitempty"`
}

// LinkCounters is the serial link part of a status response.
type LinkCounters struct {
	TxFrames uint64 `json:"tx_frames"`
	TxBytes  uint64 `json:"tx_bytes"`
	RxFrames uint64 `json:"rx_frames"`
	RxBytes  uint64 `json:"rx_bytes"`
	Overflow uint64 `json:"overflows"`
	Timeouts uint64 `json:"timeouts"`
}

// Status reports the machine snapshot, session and link counters.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	s := h.opts.Machine.Snapshot()
	resp := StatusResponse{
		State:         s.State.String(),
		BatchCount:    s.Count,
		StormDetected: s.StormDetected,
		AccumulatedS:  int64(s.Accumulated / time.Second),
		Steps:         s.Steps,
		LastWake:      s.LastWake.String(),
		LastCauses:    s.LastCauses.String(),
	}
	if h.opts.Radio != nil {
		resp.Radio = h.opts.Radio.Status().String()
	}
	if h.opts.Faults != nil {
		fs := &FaultSummary{Count: h.opts.Faults.Count()}
		if code, ok := h.opts.Faults.Last(); ok {
			fs.Last = uint8(code)
			fs.LastName = code.String()
			fs.LastBand = code.Band().String()
		}
		resp.Faults = fs
	}
	if h.opts.Link != nil {
		st := h.opts.Link.Statistics()
		resp.Link = &LinkCounters{
			TxFrames: st.TxFrames,
			TxBytes:  st.TxBytes,
			RxFrames: st.RxFrames,
			RxBytes:  st.RxBytes,
			Overflow: st.Overflows,
			Timeouts: st.Timeouts(),
		}
	}
	jsonResponse(w, http.StatusOK, resp)
}

// PressButton posts a button wake cause.
func (h *Handler) PressButton(w http.ResponseWriter, r *http.Request) {
	var ev wake.Event
	switch chi.URLParam(r, "id") {
	case "0":
		ev = wake.Button0
	case "1":
		ev = wake.Button1
	default:
		errorResponse(w, http.StatusBadRequest, "button id must be 0 or 1")
		return
	}
	h.opts.Controls.Post(ev)
	successResponse(w, "pressed "+ev.String())
}

// FireTimer posts an RTC wake cause.
func (h *Handler) FireTimer(w http.ResponseWriter, r *http.Request) {
	h.opts.Controls.Post(wake.Timer)
	successResponse(w, "timer fired")
}

// Shake injects n accelerometer activity events.
func (h *Handler) Shake(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 || n > MaxShake {
		errorResponse(w, http.StatusBadRequest, "shake count must be 1-"+strconv.Itoa(MaxShake))
		return
	}
	h.opts.Controls.Shake(n)
	successResponse(w, "shook "+strconv.Itoa(n)+" times")
}

func (h *Handler) cable(act func(), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act()
		successResponse(w, msg)
	}
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("statusapi: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("statusapi: shutdown: %v", err)
	}
	log.Println("statusapi: stopped")
	return nil
}
