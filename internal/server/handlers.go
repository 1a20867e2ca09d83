package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mcuplan/errcode"
	"mcuplan/services/bench"
	"mcuplan/services/monitor"
	"mcuplan/services/pinmap"
	"mcuplan/services/validate"
	"mcuplan/types"
	"mcuplan/x/mathx"
)

const maxBody = 1 << 20

// probeLatencyUS bounds the simulated per-transaction latency. The bus
// worker sleeps it out even after a client times out.
var probeLatencyUS = mathx.Range[int]{Lo: 0, Hi: 100_000}

// statsTimeout bounds the wait for the monitor; /health answers without it.
const statsTimeout = 200 * time.Millisecond

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"service": "mcuplan",
		"catalog": s.cat.Len(),
	}
	if s.conn != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()
		if msg, err := s.conn.Request(ctx, monitor.TopicStats, nil); err == nil {
			resp["monitor"] = msg.Payload
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

func (s *Server) handleListMCUs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cat.List())
}

func (s *Server) handleGetMCU(w http.ResponseWriter, r *http.Request) {
	m, err := s.cat.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetPins(w http.ResponseWriter, r *http.Request) {
	m, err := s.cat.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"mcu": m.ID, "pins": m.Inventory()})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	t := types.PeripheralType(strings.ToLower(chi.URLParam(r, "type")))
	if !t.Known() {
		s.writeError(w, errcode.Wrap(errcode.UnknownPeripheral, "rules", string(t), nil))
		return
	}
	required := validate.RequiredFields(t)
	if required == nil {
		required = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"type": t, "required": required})
}

// -----------------------------------------------------------------------------
// Selection and configurations
// -----------------------------------------------------------------------------

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.configs.Selected(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sel)
}

type selectRequest struct {
	MCU string `json:"mcu"`
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.MCU) == "" {
		s.writeError(w, errcode.Wrap(errcode.MissingField, "select", "mcu is required", nil))
		return
	}
	sel, err := s.configs.Select(r.Context(), req.MCU)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Get(r.Context(), chi.URLParam(r, "mcu"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	rep, err := s.configs.Reset(r.Context(), chi.URLParam(r, "mcu"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.configs.Report(r.Context(), chi.URLParam(r, "mcu"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Get(r.Context(), chi.URLParam(r, "mcu"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mcu":         cfg.MCUID,
		"assignments": pinmap.Assignments(cfg),
		"conflicted":  pinmap.Conflicted(cfg),
	})
}

func (s *Server) handlePutInstance(w http.ResponseWriter, r *http.Request) {
	var f types.Fields
	if err := decodeBody(r, &f); err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := s.configs.Put(r.Context(),
		chi.URLParam(r, "mcu"),
		types.PeripheralType(strings.ToLower(chi.URLParam(r, "type"))),
		chi.URLParam(r, "instance"),
		f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	rep, err := s.configs.Delete(r.Context(),
		chi.URLParam(r, "mcu"),
		types.PeripheralType(strings.ToLower(chi.URLParam(r, "type"))),
		chi.URLParam(r, "instance"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// handleValidate checks an ad hoc configuration without storing it. An
// invalid configuration is still a 200; the report says why.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var cfg types.Configuration
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.MCUID == "" {
		s.writeError(w, errcode.Wrap(errcode.MissingField, "validate", "mcu is required", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, s.val.Validate(&cfg))
}

// -----------------------------------------------------------------------------
// Bench
// -----------------------------------------------------------------------------

type probeRequest struct {
	MCU       string   `json:"mcu,omitempty"` // claim this MCU's configured pins first
	Devices   []uint16 `json:"devices"`       // addresses that acknowledge
	Addresses []uint16 `json:"addresses"`     // empty scans the full range
	LatencyUS int      `json:"latency_us"`
}

type probeResponse struct {
	bench.ProbeResult
	Transfers int                   `json:"transfers"` // completed on the bus, late ones included
	Claims    []types.PinAssignment `json:"claims,omitempty"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if !probeLatencyUS.Contains(req.LatencyUS) {
		s.writeError(w, errcode.Wrap(errcode.OutOfRange, "probe",
			fmt.Sprintf("latency_us %d out of range %d..%d", req.LatencyUS, probeLatencyUS.Lo, probeLatencyUS.Hi), nil))
		return
	}

	var resp probeResponse
	if req.MCU != "" {
		claims, err := s.claimPins(r.Context(), req.MCU)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Claims = claims
	}

	sim := bench.NewSimBus(time.Duration(req.LatencyUS) * time.Microsecond)
	for _, a := range req.Devices {
		sim.Attach(a, &bench.Registers{})
	}
	owner := bench.NewOwner(sim)
	res, err := bench.Probe(r.Context(), owner.Client(s.probeTimeout), req.Addresses)
	owner.Close()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp.ProbeResult = res
	resp.Transfers = len(sim.History())
	s.writeJSON(w, http.StatusOK, resp)
}

// claimPins takes every pin of the MCU's stored configuration in a fresh
// claim table. A bench run starts only when all claims succeed.
func (s *Server) claimPins(ctx context.Context, mcuID string) ([]types.PinAssignment, error) {
	m, err := s.cat.Lookup(mcuID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.Get(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	reg := pinmap.NewRegistry(m.Inventory())
	if err := reg.Apply(cfg); err != nil {
		return nil, err
	}
	return reg.Snapshot(), nil
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errcode.Wrap(errcode.InvalidPayload, "decode", "empty body", err)
		}
		return errcode.Wrap(errcode.InvalidPayload, "decode", err.Error(), err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errcode.Of(err)
	status := statusOf(code)
	if status >= 500 {
		s.log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, types.ErrorReply{OK: false, Error: string(code), Message: err.Error()})
}

func statusOf(c errcode.Code) int {
	switch c {
	case errcode.NotFound, errcode.UnknownMCU:
		return http.StatusNotFound
	case errcode.InvalidParams, errcode.InvalidPayload, errcode.MissingField,
		errcode.OutOfRange, errcode.UnknownPeripheral, errcode.UnknownInstance, errcode.UnknownPin:
		return http.StatusBadRequest
	case errcode.PinInUse, errcode.PinConflict:
		return http.StatusConflict
	case errcode.Busy, errcode.Unavailable:
		return http.StatusServiceUnavailable
	case errcode.Timeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
