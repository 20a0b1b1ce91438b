/******************************************************************************
 *
 *  Description :
 *
 *  Handlers of /session/* requests: credentials, embeddable rooms and archives.
 *
 *****************************************************************************/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vidroom/vidroom/server/coordinator"
	"github.com/vidroom/vidroom/server/logs"
	"github.com/vidroom/vidroom/server/provider"
	"github.com/vidroom/vidroom/server/store/types"
)

// Maximum size of a request body.
const maxRequestBody = 1 << 16

type sessionHandler struct {
	coord *coordinator.Coordinator
}

// embedRequest is the body of POST /session/{embedId}.
type embedRequest struct {
	RoomName string          `json:"roomName"`
	URL      string          `json:"url"`
	Width    types.Dimension `json:"width"`
	Height   types.Dimension `json:"height"`
	Name     string          `json:"name,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type archiveIDResponse struct {
	ArchiveID string `json:"archiveId"`
	Status    int    `json:"status"`
}

type archivesResponse struct {
	Archives []provider.Archive `json:"archives"`
	Status   int                `json:"status"`
}

type roomsResponse struct {
	Rooms []string `json:"rooms"`
}

type stateResponse struct {
	Room  string            `json:"room"`
	State coordinator.State `json:"state"`
}

func (h *sessionHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /session/{room}", h.getCredentials)
	mux.HandleFunc("POST /session/{embedId}", h.createEmbedRoom)
	mux.HandleFunc("GET /session/{$}", h.listRooms)
	mux.HandleFunc("GET /session", h.listRooms)
	mux.HandleFunc("POST /session/{room}/startArchive", h.startArchive)
	mux.HandleFunc("POST /session/{room}/{archiveId}/stopArchive", h.stopArchive)
	mux.HandleFunc("GET /session/{room}/archives", h.listArchives)
	mux.HandleFunc("GET /session/{room}/state", h.roomState)
}

func (h *sessionHandler) getCredentials(w http.ResponseWriter, r *http.Request) {
	cred, err := h.coord.ResolveCredentials(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *sessionHandler) createEmbedRoom(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)
	// Empty body is the same as {}.
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, errors.Join(types.ErrMalformed, err))
		return
	}

	cred, err := h.coord.CreateEmbedRoom(r.Context(), r.PathValue("embedId"), types.EmbedProps{
		Room:   req.RoomName,
		Name:   req.Name,
		URL:    req.URL,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *sessionHandler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.coord.ListRooms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []string{}
	}
	writeJSON(w, http.StatusOK, &roomsResponse{Rooms: rooms})
}

func (h *sessionHandler) startArchive(w http.ResponseWriter, r *http.Request) {
	archive, err := h.coord.StartArchive(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &archiveIDResponse{ArchiveID: archive.ID, Status: http.StatusOK})
}

func (h *sessionHandler) stopArchive(w http.ResponseWriter, r *http.Request) {
	id, err := h.coord.StopArchive(r.Context(), r.PathValue("archiveId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &archiveIDResponse{ArchiveID: id, Status: http.StatusOK})
}

func (h *sessionHandler) listArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.coord.ListArchives(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &archivesResponse{Archives: archives, Status: http.StatusOK})
}

func (h *sessionHandler) roomState(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	state, err := h.coord.RoomState(r.Context(), room)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if name, err := types.NormalizeRoomName(room); err == nil {
		room = name
	}
	writeJSON(w, http.StatusOK, &stateResponse{Room: room, State: state})
}

func serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn.Println("http: failed to write response", err)
	}
}

// errorStatus maps an error to the HTTP status and a message safe to show to the client.
func errorStatus(err error) (int, string) {
	var perr *provider.Error
	isProvider := errors.As(err, &perr)
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "Request body is too large"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.Is(err, types.ErrMalformed):
		return http.StatusBadRequest, "Malformed request"
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout, "Video service did not respond in time"
	case isProvider && perr.NotFound():
		return http.StatusNotFound, perr.Error()
	case isProvider:
		return http.StatusInternalServerError, perr.Error()
	case errors.Is(err, types.ErrUnavailable):
		return http.StatusInternalServerError, "Room storage is unavailable"
	case errors.Is(err, context.Canceled):
		return http.StatusInternalServerError, "Request canceled"
	}
	return http.StatusInternalServerError, "Internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logs.Err.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logs.Warn.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, &errorResponse{Message: msg})
}
