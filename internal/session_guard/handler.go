package session_guard

import (
	"encoding/json"
	"net/http"

	"github.com/worldtattoorating/backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	guard *Guard
}

func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/session/signal", handler.handleSignal).Methods("POST", "OPTIONS").Name("session-signal")
	router.HandleFunc("/session/status", handler.handleStatus).Methods("GET").Name("session-status")
}

type signalRequest struct {
	Signal string `json:"signal"`
	Path   string `json:"path,omitempty"`
}

func (handler *Handler) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	token := r.Header.Get("X-WTR-TOKEN")
	if token == "" {
		pkg.WriteJSONError(w, "no token", http.StatusBadRequest)
		return
	}

	var signalReq signalRequest
	if err := json.NewDecoder(r.Body).Decode(&signalReq); err != nil {
		log.Errorf("session signal, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "error, request body invalid", http.StatusBadRequest)
		return
	}

	status, err := handler.guard.Signal(token, signalReq.Signal, signalReq.Path)
	if err != nil {
		pkg.WriteJSONError(w, "error, signal invalid", http.StatusBadRequest)
		return
	}

	handler.writeStatus(w, status)
}

func (handler *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-WTR-TOKEN")
	if token == "" {
		pkg.WriteJSONError(w, "no token", http.StatusBadRequest)
		return
	}

	handler.writeStatus(w, handler.guard.Status(token))
}

func (handler *Handler) writeStatus(w http.ResponseWriter, status Status) {
	statusJson, err := json.Marshal(status)
	if err != nil {
		log.Errorf("marshal session status error: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statusJson)
}
