package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

const maxCommandsPerRequest = 1000

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot(1)
	pending := len(snap.Pending)
	for _, p := range snap.Programs {
		pending += p.Remaining
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Machine:       snap.Machine.Name,
		Connection:    string(snap.Machine.Status),
		Ready:         snap.Machine.Ready,
		Running:       snap.Machine.Running,
		Pending:       pending,
		InFlight:      len(snap.InFlight),
	})
}

// handleSnapshot handles GET /snapshot?acks=N.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	window := s.config.AckWindow
	if v := r.URL.Query().Get("acks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "acks must be a non-negative integer")
			return
		}
		window = n
	}
	respondJSON(w, http.StatusOK, snapshotResponse(s.engine.Snapshot(window)))
}

// handleCommands handles POST /commands. Commands are queued in request
// order starting at the requested position.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	var req CommandsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Commands) == 0 {
		s.writeError(w, http.StatusBadRequest, "commands must not be empty")
		return
	}
	if len(req.Commands) > maxCommandsPerRequest {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d commands per request", maxCommandsPerRequest))
		return
	}

	start, err := parsePosition(req.Position)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	queued := 0
	for i, c := range req.Commands {
		cmd := gcode.Command(c)
		if cmd.IsBlank() {
			continue
		}
		pos := queue.Tail
		if start >= 0 {
			pos = queue.At(start + queued)
		}
		if err := s.engine.Enqueue(cmd, pos); err != nil {
			if errors.Is(err, queue.ErrOutOfRange) {
				s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("command %d: %v", i, err))
				return
			}
			s.logger.Error("enqueue failed", "command", c, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to enqueue command")
			return
		}
		queued++
	}

	s.logger.Info("commands queued via api", "count", queued)
	respondJSON(w, http.StatusAccepted, CommandsResponse{
		Queued:  queued,
		Pending: len(s.engine.Snapshot(1).Pending),
	})
}

// handleControl handles POST /control/{action}.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	resp := ControlResponse{Action: action}

	switch action {
	case "run":
		s.engine.SetRunning(true)
	case "pause":
		s.engine.SetRunning(false)
	case "flush":
		resp.Flushed = s.engine.Flush()
	default:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}

	s.logger.Info("control via api", "action", action)
	resp.Running = s.engine.Snapshot(1).Machine.Running
	respondJSON(w, http.StatusOK, resp)
}

// parsePosition accepts "tail", "head" or a non-negative offset. Tail is
// reported as -1.
func parsePosition(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return -1, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "tail", "":
			return -1, nil
		case "head":
			return 0, nil
		}
		return 0, fmt.Errorf("unknown position %q", name)
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil || idx < 0 {
		return 0, errors.New(`position must be "head", "tail" or a non-negative integer`)
	}
	return idx, nil
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
