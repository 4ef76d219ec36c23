package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-appliances/internal/audit"
	"github.com/nerrad567/gray-logic-appliances/internal/bridges/homeconnect"
)

// History paging limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// applianceDetail is the response body of GET /appliances/{id}.
type applianceDetail struct {
	homeconnect.DeviceInfo
	Programs programTables `json:"programs"`
}

type programTables struct {
	Static     []homeconnect.ProgramEntry `json:"static"`
	Discovered []homeconnect.ProgramEntry `json:"discovered"`
}

// commandRequest is the body of POST /appliances/{id}/commands.
type commandRequest struct {
	Command    string             `json:"command"`
	Parameters homeconnect.Params `json:"parameters"`
}

// appliance resolves the {id} URL parameter, writing a 404 when unknown.
func (s *Server) appliance(w http.ResponseWriter, r *http.Request) (*homeconnect.Device, bool) {
	d, err := s.bridge.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeBridgeError(w, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleListAppliances(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	infos := make([]homeconnect.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, d.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appliances": infos,
		"count":      len(infos),
	})
}

func (s *Server) handleGetAppliance(w http.ResponseWriter, r *http.Request) {
	d, ok := s.appliance(w, r)
	if !ok {
		return
	}
	static, discovered := d.Programs()
	writeJSON(w, http.StatusOK, applianceDetail{
		DeviceInfo: d.Info(),
		Programs:   programTables{Static: static, Discovered: discovered},
	})
}

func (s *Server) handleGetAttributes(w http.ResponseWriter, r *http.Request) {
	d, ok := s.appliance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         d.ID(),
		"attributes": d.Attributes(),
	})
}

// handleGetSnapshot returns the last published snapshot document as is.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	d, ok := s.appliance(w, r)
	if !ok {
		return
	}
	data, err := d.Snapshot()
	if err != nil {
		s.logger.Error("building snapshot", "device_id", d.ID(), "error", err)
		writeStatus(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}

func (s *Server) handleGetDiscoveredKeys(w http.ResponseWriter, r *http.Request) {
	d, ok := s.appliance(w, r)
	if !ok {
		return
	}
	keys := d.DiscoveredKeys()
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

func (s *Server) handleClearDiscoveredKeys(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.bridge.ClearDiscoveredKeys(id); err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionClearKeys, id, nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRecentEvents(w http.ResponseWriter, r *http.Request) {
	d, ok := s.appliance(w, r)
	if !ok {
		return
	}
	events := d.RecentEvents()
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleGetHistory lists persisted snapshots, newest first.
// Query: limit (1..200, default 50).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeStatus(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.bridge.History(r.Context(), id, limit)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	if entries == nil {
		entries = []homeconnect.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// handleCommand executes a semantic command. The command is translated and
// sent to the cloud asynchronously, so success is 202 Accepted.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "command is required")
		return
	}

	err := s.bridge.ExecuteCommand(id, req.Command, req.Parameters)
	if !errors.Is(err, homeconnect.ErrUnknownDevice) {
		s.recordAudit(r, audit.ActionCommand, id, err, map[string]any{
			"command":    req.Command,
			"parameters": req.Parameters,
		})
	}
	if err != nil {
		s.logger.Debug("api command rejected", "device_id", id, "command", req.Command, "error", err)
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  homeconnect.AckAccepted,
		"id":      id,
		"command": req.Command,
	})
}

// handleInjectEvents feeds a raw cloud event envelope to a device, as if it
// had arrived over MQTT. Used for diagnostics.
func (s *Server) handleInjectEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "failed to read body")
		return
	}

	n, err := s.bridge.InjectEvents(id, body)
	if !errors.Is(err, homeconnect.ErrUnknownDevice) {
		s.recordAudit(r, audit.ActionInjectEvent, id, err, map[string]any{"events": n})
	}
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"applied": n,
	})
}
