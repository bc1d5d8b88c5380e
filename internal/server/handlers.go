package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"metamirror/pkg/engine"
	"metamirror/pkg/storage"
)

type response struct {
	Success bool            `json:"success"`
	Data    interface{}     `json:"data,omitempty"`
	Count   *int            `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, response{Success: true, Data: data})
}

func writeList(w http.ResponseWriter, data interface{}, count int) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data, Count: &count})
}

// writeError maps the engine's error kinds onto HTTP statuses. A remote
// rejection comes back as the caller's fault (400) with the platform's raw
// error attached; a transport-level remote failure is a bad gateway.
func writeError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch engErr.Kind {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindRemote:
		if engErr.Transport() {
			status = http.StatusBadGateway
		} else {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, response{Error: engErr.Detail, Details: engErr.RemoteBody})
}

func decodePayload(r *http.Request) (engine.Payload, error) {
	var payload engine.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := engine.Filter{Status: storage.Status(r.URL.Query().Get("status"))}
		entities, err := s.Engine.List(r.Context(), kind, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeList(w, entities, len(entities))
	}
}

func (s *Server) handleChildren(childKind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := engine.Filter{
			ParentRemoteID: r.PathValue("id"),
			Status:         storage.Status(r.URL.Query().Get("status")),
		}
		entities, err := s.Engine.List(r.Context(), childKind, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeList(w, entities, len(entities))
	}
}

func (s *Server) handleCreate(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: "invalid JSON body: " + err.Error()})
			return
		}
		entity, err := s.Engine.Create(r.Context(), kind, payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusCreated, entity)
	}
}

func (s *Server) handleGet(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := s.Engine.Get(r.Context(), kind, r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, entity)
	}
}

func (s *Server) handleUpdate(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: "invalid JSON body: " + err.Error()})
			return
		}
		entity, err := s.Engine.Update(r.Context(), kind, r.PathValue("id"), payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, entity)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: "invalid JSON body: " + err.Error()})
			return
		}
		entity, err := s.Engine.ChangeStatus(r.Context(), kind, r.PathValue("id"), storage.Status(req.Status))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, entity)
	}
}

func (s *Server) handleDelete(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := s.Engine.Delete(r.Context(), kind, r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, entity)
	}
}
