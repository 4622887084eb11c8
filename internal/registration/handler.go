package registration

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/worldtattoorating/backend/internal/telemetry/metrics"
	"github.com/worldtattoorating/backend/internal/telemetry/tracing"
	"github.com/worldtattoorating/backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	api      Api
	messages MessageCounter
	metrics  *metrics.Manager
}

func NewHandler(
	api Api,
	messages MessageCounter,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		api:      api,
		messages: messages,
		metrics:  metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/registrations/{tipo}", handler.handleCreate).Methods("POST", "OPTIONS").Name("new-registration")
	router.HandleFunc("/api/registrations/{tipo}", handler.handleList).Methods("GET").Name("list-registrations")
	router.HandleFunc("/api/registrations/{tipo}/export", handler.handleExport).Methods("GET").Name("export-registrations")
	router.HandleFunc("/api/registrations/{tipo}/{id}/accept", handler.handleAccept).Methods("POST", "OPTIONS").Name("accept-registration")
	router.HandleFunc("/api/registrations/{tipo}/{id}/reject", handler.handleReject).Methods("POST", "OPTIONS").Name("reject-registration")
	router.HandleFunc("/api/registrations/{tipo}/{id}", handler.handleDelete).Methods("DELETE", "OPTIONS").Name("delete-registration")
	router.HandleFunc("/api/stats", handler.handleStats).Methods("GET").Name("stats")
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	tipo := mux.Vars(r)["tipo"]
	if !ValidTipo(tipo) {
		pkg.WriteJSONError(w, "error, tipo invalid", http.StatusBadRequest)
		return
	}

	var registrant Registrant
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&registrant); err != nil {
			log.Errorf("new %s registration, unmarshal json params: %s", tipo, err)
			pkg.WriteJSONError(w, "Error al guardar el registro", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("new %s registration failed, parse form error: %s", tipo, err)
			pkg.WriteJSONError(w, "Error al guardar el registro", http.StatusInternalServerError)
			return
		}
		registrant = Registrant{
			Nombre:          r.Form.Get("nombre"),
			NombreArtistico: r.Form.Get("nombreArtistico"),
			Email:           r.Form.Get("email"),
			Pais:            r.Form.Get("pais"),
			Ciudad:          r.Form.Get("ciudad"),
			Categoria:       r.Form.Get("categoria"),
		}
	}
	registrant.Tipo = tipo

	if registrant.Nombre == "" {
		pkg.WriteJSONError(w, "error, nombre empty", http.StatusBadRequest)
		return
	}
	if registrant.Email == "" {
		pkg.WriteJSONError(w, "error, email empty", http.StatusBadRequest)
		return
	}

	created, err := handler.api.Add(r.Context(), &registrant)
	if err != nil {
		log.Errorf("store new %s registration error: %s", tipo, err)
		pkg.WriteJSONError(w, "Error al guardar el registro", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterRegistrations.WithLabelValues(tipo).Inc()

	createdJson, err := json.Marshal(created)
	if err != nil {
		log.Errorf("marshal created registrant error: %s", err)
		pkg.WriteJSONError(w, "Error al guardar el registro", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, createdJson, http.StatusCreated)
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tipo := mux.Vars(r)["tipo"]
	if !ValidTipo(tipo) {
		pkg.WriteJSONError(w, "error, tipo invalid", http.StatusBadRequest)
		return
	}

	registrants, err := handler.api.List(r.Context(), tipo)
	if err != nil {
		log.Errorf("list %s error: %s", tipo, err)
		pkg.WriteJSONError(w, "Error al obtener los registros", http.StatusInternalServerError)
		return
	}

	if len(registrants) == 0 {
		pkg.WriteJSONResponseOK(w, "[]")
		return
	}

	registrantsJson, err := json.Marshal(registrants)
	if err != nil {
		log.Errorf("marshal %s error: %s", tipo, err)
		pkg.WriteJSONError(w, "Error al obtener los registros", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, registrantsJson)
}

func (handler *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	handler.setEstado(w, r, EstadoAceptado)
}

func (handler *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	handler.setEstado(w, r, EstadoRechazado)
}

func (handler *Handler) setEstado(w http.ResponseWriter, r *http.Request, estado string) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	tipo, id := vars["tipo"], vars["id"]
	if !ValidTipo(tipo) {
		pkg.WriteJSONError(w, "error, tipo invalid", http.StatusBadRequest)
		return
	}

	updated, err := handler.api.SetEstado(r.Context(), tipo, id, estado)
	if err != nil {
		if errors.Is(err, ErrRegistrantNotFound) {
			pkg.WriteJSONError(w, "Registro no encontrado", http.StatusNotFound)
			return
		}
		log.Errorf("set estado %s for %s/%s error: %s", estado, tipo, id, err)
		pkg.WriteJSONError(w, "Error al actualizar el registro", http.StatusInternalServerError)
		return
	}

	updatedJson, err := json.Marshal(updated)
	if err != nil {
		log.Errorf("marshal updated registrant error: %s", err)
		pkg.WriteJSONError(w, "Error al actualizar el registro", http.StatusInternalServerError)
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
	tipo, id := vars["tipo"], vars["id"]
	if !ValidTipo(tipo) {
		pkg.WriteJSONError(w, "error, tipo invalid", http.StatusBadRequest)
		return
	}

	if err := handler.api.Delete(r.Context(), tipo, id); err != nil {
		log.Errorf("delete registrant %s/%s error: %s", tipo, id, err)
		pkg.WriteJSONError(w, "Error al eliminar el registro", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExport streams the registrants of one tipo as a CSV attachment,
// the dashboard's spreadsheet export.
func (handler *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "registrationHandler.export")

	tipo := mux.Vars(r)["tipo"]
	if !ValidTipo(tipo) {
		span.End()
		pkg.WriteJSONError(w, "error, tipo invalid", http.StatusBadRequest)
		return
	}

	registrants, err := handler.api.List(ctx, tipo)
	tracing.EndSpanWithErrCheck(span, err)
	if err != nil {
		log.Errorf("export %s error: %s", tipo, err)
		pkg.WriteJSONError(w, "Error al exportar los registros", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_registrados_%s.csv", tipo, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", pkg.ContentType.CSV)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	csvWriter := csv.NewWriter(w)
	record := []string{"Nombre", "Nombre Artístico", "Email", "País", "Ciudad", "Categoría", "Estado", "Fecha de Registro"}
	if err := csvWriter.Write(record); err != nil {
		log.Errorf("export %s, write csv header: %s", tipo, err)
		return
	}

	for _, registrant := range registrants {
		nombreArtistico := registrant.NombreArtistico
		if nombreArtistico == "" {
			nombreArtistico = "No especificado"
		}
		record = []string{
			registrant.Nombre,
			nombreArtistico,
			registrant.Email,
			registrant.Pais,
			registrant.Ciudad,
			registrant.Categoria,
			registrant.Estado,
			registrant.FechaRegistro.Format(time.RFC3339),
		}
		if err := csvWriter.Write(record); err != nil {
			log.Errorf("export %s, write csv record: %s", tipo, err)
			return
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		log.Errorf("export %s, flush csv: %s", tipo, err)
	}
}

func (handler *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	tatuadores, jurados, err := handler.api.Counts(r.Context())
	if err != nil {
		log.Errorf("get registration counts error: %s", err)
		pkg.WriteJSONError(w, "Error al obtener las estadísticas", http.StatusInternalServerError)
		return
	}

	mensajes, err := handler.messages.Count(r.Context())
	if err != nil {
		log.Errorf("get messages count error: %s", err)
		pkg.WriteJSONError(w, "Error al obtener las estadísticas", http.StatusInternalServerError)
		return
	}

	resp := fmt.Sprintf(
		`{"totalTatuadores":%d,"totalJurados":%d,"totalRegistros":%d,"totalMensajes":%d}`,
		tatuadores, jurados, tatuadores+jurados, mensajes,
	)
	pkg.WriteJSONResponseOK(w, resp)
}
