package contact

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/worldtattoorating/backend/internal/telemetry/metrics"
	"github.com/worldtattoorating/backend/internal/telemetry/tracing"
	"github.com/worldtattoorating/backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	api     Api
	metrics *metrics.Manager
}

func NewHandler(
	api Api,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		api:     api,
		metrics: metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/messages", handler.handleCreate).Methods("POST", "OPTIONS").Name("new-message")
	router.HandleFunc("/api/messages", handler.handleList).Methods("GET").Name("list-messages")
	router.HandleFunc("/api/messages/{id}", handler.handleUpdate).Methods("PATCH", "OPTIONS").Name("update-message")
	router.HandleFunc("/api/messages/{id}", handler.handleDelete).Methods("DELETE", "OPTIONS").Name("delete-message")
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var message Message
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&message); err != nil {
			log.Errorf("store new message, unmarshal message json params: %s", err)
			pkg.WriteJSONError(w, "Error al guardar el mensaje", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("add new message failed, parse form error: %s", err)
			pkg.WriteJSONError(w, "Error al guardar el mensaje", http.StatusInternalServerError)
			return
		}
		message = Message{
			Nombre:   r.Form.Get("nombre"),
			Email:    r.Form.Get("email"),
			Telefono: r.Form.Get("telefono"),
			Mensaje:  r.Form.Get("mensaje"),
		}
	}

	if message.Mensaje == "" {
		pkg.WriteJSONError(w, "error, mensaje empty", http.StatusBadRequest)
		return
	}
	if message.Email == "" {
		pkg.WriteJSONError(w, "error, email empty", http.StatusBadRequest)
		return
	}
	if message.Nombre == "" {
		message.Nombre = "anónimo"
	}

	created, err := handler.api.Add(r.Context(), &message)
	if err != nil {
		log.Errorf("store new message error: %s", err)
		pkg.WriteJSONError(w, "Error al guardar el mensaje", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterMessages.Inc()

	createdJson, err := json.Marshal(created)
	if err != nil {
		log.Errorf("marshal created message error: %s", err)
		pkg.WriteJSONError(w, "Error al guardar el mensaje", http.StatusInternalServerError)
		return
	}

	log.Tracef("new contact message stored: %s", created.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, createdJson, http.StatusCreated)
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "contactHandler.list")
	defer span.End()

	messages, err := handler.api.List(ctx)
	if err != nil {
		log.Errorf("list contact messages error: %s", err)
		pkg.WriteJSONError(w, "Error al obtener los mensajes", http.StatusInternalServerError)
		return
	}

	if len(messages) == 0 {
		pkg.WriteJSONResponseOK(w, "[]")
		return
	}

	messagesJson, err := json.Marshal(messages)
	if err != nil {
		log.Errorf("marshal contact messages error: %s", err)
		pkg.WriteJSONError(w, "Error al obtener los mensajes", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, messagesJson)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PATCH, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		pkg.WriteJSONError(w, "error, id empty", http.StatusBadRequest)
		return
	}

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Errorf("update message %s, unmarshal patch: %s", id, err)
		pkg.WriteJSONError(w, "Error al actualizar el mensaje", http.StatusBadRequest)
		return
	}

	updated, err := handler.api.Update(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			pkg.WriteJSONError(w, "Mensaje no encontrado", http.StatusNotFound)
			return
		}
		log.Errorf("update message %s error: %s", id, err)
		pkg.WriteJSONError(w, "Error al actualizar el mensaje", http.StatusInternalServerError)
		return
	}

	updatedJson, err := json.Marshal(updated)
	if err != nil {
		log.Errorf("marshal updated message error: %s", err)
		pkg.WriteJSONError(w, "Error al actualizar el mensaje", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, updatedJson)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "DELETE, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		pkg.WriteJSONError(w, "error, id empty", http.StatusBadRequest)
		return
	}

	if err := handler.api.Delete(r.Context(), id); err != nil {
		log.Errorf("delete message %s error: %s", id, err)
		pkg.WriteJSONError(w, "Error al eliminar el mensaje", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
