package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/worldtattoorating/backend/internal/session_guard"
	"github.com/worldtattoorating/backend/internal/telemetry/metrics"
	"github.com/worldtattoorating/backend/internal/telemetry/tracing"
	"github.com/worldtattoorating/backend/pkg"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	authService *Service
	guard       *session_guard.Guard
	metrics     *metrics.Manager
}

func NewHandler(
	authService *Service,
	guard *session_guard.Guard,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		authService: authService,
		guard:       guard,
		metrics:     metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/login", handler.handleLogin).Methods("POST", "OPTIONS").Name("login")
	router.HandleFunc("/logout", handler.handleLogout).Methods("GET", "OPTIONS").Name("logout")
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var credentials Credentials
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			pkg.WriteJSONError(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			pkg.WriteJSONError(w, "parse form error", http.StatusInternalServerError)
			return
		}
		credentials = Credentials{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if credentials.Username == "" {
		pkg.WriteJSONError(w, "error, username empty", http.StatusBadRequest)
		return
	}
	if credentials.Password == "" {
		pkg.WriteJSONError(w, "error, password empty", http.StatusBadRequest)
		return
	}

	token, err := handler.authService.Login(r.Context(), credentials, time.Now())
	if err != nil {
		if errors.Is(err, ErrWrongPassword) || errors.Is(err, ErrWrongUsername) {
			log.Tracef("failed login attempt for user: %s", credentials.Username)
			pkg.WriteJSONError(w, "error, wrong credentials", http.StatusBadRequest)
			return
		}
		log.Errorf("login failed, generate token error: %s", err)
		pkg.WriteJSONError(w, "generate token error", http.StatusInternalServerError)
		return
	}

	handler.guard.Start(token)
	handler.metrics.CounterLogins.Inc()

	log.Trace("new login success")
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"token": "%s"}`, token))
}

func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	authToken := r.Header.Get("X-WTR-TOKEN")
	if authToken == "" {
		pkg.WriteJSONError(w, "no can do", http.StatusUnauthorized)
		return
	}

	// let the state machine run the exit sequence; it revokes the token
	// through its logout callback
	status, err := handler.guard.Signal(authToken, session_guard.SignalManual, "")
	if err != nil {
		log.Errorf("logout, guard signal: %s", err)
		pkg.WriteJSONError(w, "no can do", http.StatusUnauthorized)
		return
	}

	if status.Reason == "" {
		// session unknown to the guard (e.g. issued before a restart),
		// revoke the token directly
		loggedOut, err := handler.authService.Logout(r.Context(), authToken)
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Tracef("[failed logout] => %s: %s", r.URL.Path, err)
			pkg.WriteJSONError(w, "no can do", http.StatusUnauthorized)
			return
		}
		if !loggedOut {
			pkg.WriteJSONError(w, "no can do", http.StatusUnauthorized)
			return
		}
	}

	log.Debugf("logout success")
	pkg.WriteTextResponseOK(w, "logged-out")
}
