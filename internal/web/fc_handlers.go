package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"gcslink/internal/fc"
)

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{
		"error": message,
		"code":  status,
	})
}

// statusForConnectError maps the manager's setup failure classes onto
// HTTP status codes.
func statusForConnectError(err error) int {
	var terr *fc.TransportError
	switch {
	case errors.Is(err, fc.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, fc.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, fc.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var cfg fc.ConnectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.manager.Connect(r.Context(), cfg); err != nil {
		s.logger.Warn("connect request failed", "error", err)
		errorResponse(w, statusForConnectError(err), err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.manager.Disconnect(r.Context(), true)
	jsonResponse(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.ports()
	if err != nil {
		s.logger.Warn("serial port enumeration failed", "error", err)
		errorResponse(w, http.StatusInternalServerError, "list serial ports: "+err.Error())
		return
	}
	if ports == nil {
		ports = []string{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"ports": ports,
	})
}
