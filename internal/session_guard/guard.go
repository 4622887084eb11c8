package session_guard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/worldtattoorating/backend/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

// The guard watches admin sessions and forces a logout when the browser
// reports a condition suggesting the operator stepped away, lost
// connectivity, or navigated off the panel. It is a safety net on top of
// the token auth, not a replacement for it.

type State string

const (
	StateLoggedIn  State = "logged_in"
	StateLoggedOut State = "logged_out"
)

// Signals sent by the admin page.
const (
	SignalActivity   = "activity"
	SignalHidden     = "hidden"
	SignalVisible    = "visible"
	SignalBlur       = "blur"
	SignalFocus      = "focus"
	SignalOffline    = "offline"
	SignalOnline     = "online"
	SignalNavigation = "navigation"
	SignalUnload     = "unload"
	SignalManual     = "manual"
)

// Logout reasons, each with its own message shown to the admin.
const (
	ReasonInactivity     = "inactivity"
	ReasonTabHidden      = "tab_hidden"
	ReasonWindowBlur     = "window_blur"
	ReasonBrowserClose   = "browser_close"
	ReasonNavigationAway = "navigation_away"
	ReasonConnectionLost = "connection_lost"
	ReasonSessionExpired = "session_expired"
	ReasonManual         = "manual"
)

var reasonMessages = map[string]string{
	ReasonManual:         "Sesión cerrada exitosamente",
	ReasonConnectionLost: "Sesión cerrada por pérdida de conexión",
	ReasonTabHidden:      "Sesión cerrada por inactividad (pestaña oculta)",
	ReasonBrowserClose:   "Sesión cerrada por cierre de navegador",
	ReasonNavigationAway: "Sesión cerrada por navegación fuera del panel",
	ReasonWindowBlur:     "Sesión cerrada por inactividad (ventana sin foco)",
	ReasonInactivity:     "Sesión cerrada por inactividad prolongada",
	ReasonSessionExpired: "Sesión expirada por tiempo máximo alcanzado",
}

func ReasonMessage(reason string) string {
	if message, ok := reasonMessages[reason]; ok {
		return message
	}
	return "Sesión cerrada por seguridad"
}

var ErrUnknownSignal = errors.New("unknown session signal")

type Config struct {
	IdleTimeout       time.Duration
	HiddenTimeout     time.Duration
	BlurTimeout       time.Duration
	OfflineGrace      time.Duration
	MaxSessionAge     time.Duration
	HeartbeatInterval time.Duration
	AdminPathPrefix   string
}

// LogoutFunc is invoked once per session logout, outside the guard lock,
// so it can revoke the session token.
type LogoutFunc func(token, reason string)

type Status struct {
	State    State      `json:"state"`
	Reason   string     `json:"reason,omitempty"`
	Message  string     `json:"message,omitempty"`
	LoginAt  *time.Time `json:"loginAt,omitempty"`
	LogoutAt *time.Time `json:"logoutAt,omitempty"`
}

type session struct {
	token   string
	state   State
	loginAt time.Time

	// at most one idle-class timer armed at any time; hidden and blur
	// replace it rather than stack with it
	idleTimer    *time.Timer
	idleTimerGen uint64

	offline      bool
	offlineAt    time.Time
	offlineTimer *time.Timer

	heartbeatDone chan struct{}

	logoutReason string
	logoutAt     time.Time
}

type Guard struct {
	config   Config
	onLogout LogoutFunc
	metrics  *metrics.Manager

	mutex    sync.Mutex
	sessions map[string]*session

	NowFunc func() time.Time
}

func NewGuard(config Config, onLogout LogoutFunc, metrics *metrics.Manager) *Guard {
	if onLogout == nil {
		onLogout = func(string, string) {}
	}
	return &Guard{
		config:   config,
		onLogout: onLogout,
		metrics:  metrics,
		sessions: make(map[string]*session),
		NowFunc:  time.Now,
	}
}

// Start puts the session for token into the logged in state: arms the
// inactivity timer and starts the heartbeat. Called after a successful login.
func (g *Guard) Start(token string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if existing, ok := g.sessions[token]; ok && existing.state == StateLoggedIn {
		// re-login with a live session, rearm instead of stacking timers
		g.armIdleTimerLocked(existing, g.config.IdleTimeout, ReasonInactivity)
		return
	}

	s := &session{
		token:         token,
		state:         StateLoggedIn,
		loginAt:       g.NowFunc(),
		heartbeatDone: make(chan struct{}),
	}
	g.sessions[token] = s

	g.armIdleTimerLocked(s, g.config.IdleTimeout, ReasonInactivity)
	go g.heartbeat(token, s.heartbeatDone)

	g.metrics.GaugeActiveSessions.Inc()
}

// Signal feeds one browser event into the state machine and returns the
// session status after the transition. Signals for unknown or already
// logged out sessions are no-ops.
func (g *Guard) Signal(token, signal, targetPath string) (Status, error) {
	var logoutReason string

	g.mutex.Lock()
	s, ok := g.sessions[token]
	if !ok || s.state == StateLoggedOut {
		status := g.statusLocked(s)
		g.mutex.Unlock()
		return status, nil
	}

	switch signal {
	case SignalActivity, SignalVisible, SignalFocus:
		g.armIdleTimerLocked(s, g.config.IdleTimeout, ReasonInactivity)
	case SignalOnline:
		s.offline = false
		stopTimer(s.offlineTimer)
		s.offlineTimer = nil
		g.armIdleTimerLocked(s, g.config.IdleTimeout, ReasonInactivity)
	case SignalHidden:
		g.armIdleTimerLocked(s, g.config.HiddenTimeout, ReasonTabHidden)
	case SignalBlur:
		g.armIdleTimerLocked(s, g.config.BlurTimeout, ReasonWindowBlur)
	case SignalOffline:
		if !s.offline {
			s.offline = true
			s.offlineAt = g.NowFunc()
			s.offlineTimer = time.AfterFunc(g.config.OfflineGrace, func() {
				g.expireOffline(token)
			})
		}
	case SignalNavigation:
		if g.onAdminSurface(targetPath) {
			g.armIdleTimerLocked(s, g.config.IdleTimeout, ReasonInactivity)
		} else {
			logoutReason = ReasonNavigationAway
		}
	case SignalUnload:
		logoutReason = ReasonBrowserClose
	case SignalManual:
		logoutReason = ReasonManual
	default:
		g.mutex.Unlock()
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownSignal, signal)
	}

	if logoutReason != "" {
		g.logoutLocked(s, logoutReason)
	}
	status := g.statusLocked(s)
	g.mutex.Unlock()

	if logoutReason != "" {
		g.onLogout(token, logoutReason)
	}
	return status, nil
}

// Status reports the session state. A logged out session retains its
// last logout reason so the client can learn why it was kicked out.
func (g *Guard) Status(token string) Status {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.statusLocked(g.sessions[token])
}

func (g *Guard) statusLocked(s *session) Status {
	if s == nil {
		return Status{State: StateLoggedOut}
	}
	status := Status{State: s.state}
	if s.state == StateLoggedIn {
		loginAt := s.loginAt
		status.LoginAt = &loginAt
		return status
	}
	status.Reason = s.logoutReason
	status.Message = ReasonMessage(s.logoutReason)
	logoutAt := s.logoutAt
	status.LogoutAt = &logoutAt
	return status
}

// ActiveSessions returns the number of sessions currently logged in.
func (g *Guard) ActiveSessions() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	active := 0
	for _, s := range g.sessions {
		if s.state == StateLoggedIn {
			active++
		}
	}
	return active
}

// Prune drops logged out sessions older than retention, so their
// last-reason records do not pile up forever.
func (g *Guard) Prune(retention time.Duration) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	cutoff := g.NowFunc().Add(-retention)
	pruned := 0
	for token, s := range g.sessions {
		if s.state == StateLoggedOut && s.logoutAt.Before(cutoff) {
			delete(g.sessions, token)
			pruned++
		}
	}
	return pruned
}

// Shutdown stops all timers and heartbeats without transitioning any
// session, for graceful server shutdown.
func (g *Guard) Shutdown() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, s := range g.sessions {
		if s.state != StateLoggedIn {
			continue
		}
		stopTimer(s.idleTimer)
		s.idleTimer = nil
		s.idleTimerGen++
		stopTimer(s.offlineTimer)
		s.offlineTimer = nil
		close(s.heartbeatDone)
		s.heartbeatDone = nil
	}
}

// armIdleTimerLocked replaces the current idle-class timer. The generation
// counter makes a stale, already-fired timer callback a no-op, so a
// replaced or cancelled timer can never log the session out.
func (g *Guard) armIdleTimerLocked(s *session, timeout time.Duration, reason string) {
	stopTimer(s.idleTimer)
	s.idleTimerGen++
	gen := s.idleTimerGen
	token := s.token
	s.idleTimer = time.AfterFunc(timeout, func() {
		g.expireIdle(token, gen, reason)
	})
}

func (g *Guard) expireIdle(token string, gen uint64, reason string) {
	g.mutex.Lock()
	s, ok := g.sessions[token]
	if !ok || s.state != StateLoggedIn || s.idleTimerGen != gen {
		g.mutex.Unlock()
		return
	}
	g.logoutLocked(s, reason)
	g.mutex.Unlock()

	g.onLogout(token, reason)
}

func (g *Guard) expireOffline(token string) {
	g.mutex.Lock()
	s, ok := g.sessions[token]
	if !ok || s.state != StateLoggedIn || !s.offline {
		g.mutex.Unlock()
		return
	}
	g.logoutLocked(s, ReasonConnectionLost)
	g.mutex.Unlock()

	g.onLogout(token, ReasonConnectionLost)
}

// heartbeat periodically re-checks the absolute session age ceiling and the
// offline grace, independently of the event-driven timers.
func (g *Guard) heartbeat(token string, done chan struct{}) {
	ticker := time.NewTicker(g.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if g.heartbeatCheck(token) {
				return
			}
		}
	}
}

func (g *Guard) heartbeatCheck(token string) (loggedOut bool) {
	now := g.NowFunc()

	g.mutex.Lock()
	s, ok := g.sessions[token]
	if !ok || s.state != StateLoggedIn {
		g.mutex.Unlock()
		return true
	}

	var reason string
	switch {
	// absolute ceiling, activity never extends it
	case now.Sub(s.loginAt) >= g.config.MaxSessionAge:
		reason = ReasonSessionExpired
	case s.offline && now.Sub(s.offlineAt) >= g.config.OfflineGrace:
		reason = ReasonConnectionLost
	default:
		g.mutex.Unlock()
		return false
	}

	g.logoutLocked(s, reason)
	g.mutex.Unlock()

	g.onLogout(token, reason)
	return true
}

// logoutLocked is the single exit path. It is idempotent: a session
// already logged out is left untouched, so racing triggers cannot
// double-fire the exit sequence.
func (g *Guard) logoutLocked(s *session, reason string) {
	if s.state == StateLoggedOut {
		return
	}

	s.state = StateLoggedOut
	s.logoutReason = reason
	s.logoutAt = g.NowFunc()

	stopTimer(s.idleTimer)
	s.idleTimer = nil
	s.idleTimerGen++
	stopTimer(s.offlineTimer)
	s.offlineTimer = nil
	s.offline = false
	if s.heartbeatDone != nil {
		close(s.heartbeatDone)
		s.heartbeatDone = nil
	}

	g.metrics.GaugeActiveSessions.Dec()
	g.metrics.CounterForcedLogouts.WithLabelValues(reason).Inc()

	log.Debugf("session guard: logged out session [%s...] reason [%s]", sessionLogID(s.token), reason)
}

func (g *Guard) onAdminSurface(path string) bool {
	if g.config.AdminPathPrefix == "" {
		return false
	}
	return strings.HasPrefix(path, g.config.AdminPathPrefix)
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func sessionLogID(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6]
}
