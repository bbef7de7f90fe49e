package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/dashboard"
	"bank-dashboard/pkg/session"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// sessionContext is what a handler knows about the calling session.
type sessionContext struct {
	id    string
	token string
	view  dashboard.ViewState
}

// openSession loads the credential and the view state. It answers the
// request itself and returns false when the handler must stop.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*sessionContext, bool) {
	id := sessionID(r)

	token, err := s.store.Credential(r.Context(), id)
	if err != nil {
		if session.IsNotFound(err) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return nil, false
		}
		s.storeFailure(w, r, "load credential", err)
		return nil, false
	}

	sc := &sessionContext{id: id, token: token}
	if err := s.store.Load(r.Context(), id, dashboard.ViewSlot, &sc.view); err != nil && !session.IsNotFound(err) {
		if !errors.Is(err, session.ErrInvalidValue) {
			s.storeFailure(w, r, "load view", err)
			return nil, false
		}
		// an unreadable record starts over
		s.logger.Warn("discarding unreadable view state", zap.String("request_id", requestID(r)), zap.Error(err))
		sc.view = dashboard.ViewState{}
	}
	return sc, true
}

func (s *Server) saveView(ctx context.Context, sc *sessionContext) error {
	return s.store.Save(ctx, sc.id, dashboard.ViewSlot, &sc.view)
}

// dashboardFor builds the components over an upstream client that reads
// the session's credential from the store on every call.
func (s *Server) dashboardFor(sc *sessionContext) *dashboard.Dashboard {
	tokens := bankapi.TokenSourceFunc(func(ctx context.Context) (string, error) {
		return s.store.Credential(ctx, sc.id)
	})

	return dashboard.New(s.api.WithTokens(tokens), dashboard.Options{
		RefreshHistoryOnTransfer: s.config.RefreshHistoryOnTransfer,
		PendingTimeout:           s.config.PendingTimeout,
		Checkpoint: func(ctx context.Context, state *dashboard.ViewState) error {
			return s.store.Save(ctx, sc.id, dashboard.ViewSlot, state)
		},
		Logger: s.logger.ForSession(sc.id),
	})
}

func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("session store failure",
		zap.String("request_id", requestID(r)),
		zap.String("operation", op),
		zap.String("error_type", session.ClassifyError(err)),
		zap.Error(err),
	)
	http.Error(w, "Session storage is unavailable", http.StatusServiceUnavailable)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.openSession(w, r)
	if !ok {
		return
	}

	if s.dashboardFor(sc).Activate(r.Context(), &sc.view) {
		if err := s.saveView(r.Context(), sc); err != nil {
			s.storeFailure(w, r, "save view", err)
			return
		}
	}

	s.render(w, r, http.StatusOK, "dashboard.html", dashboardPage{
		Name:  bankapi.IdentityFromToken(sc.token).DisplayName(s.config.FallbackName),
		View:  &sc.view,
		Kinds: bankapi.TransferKinds,
	})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", loginPage{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		s.render(w, r, http.StatusBadRequest, "login.html", loginPage{Error: "Enter an access token."})
		return
	}

	id := sessionID(r)
	if err := s.store.SetCredential(r.Context(), id, token); err != nil {
		s.storeFailure(w, r, "store credential", err)
		return
	}

	// a new credential starts an inactive view
	if err := s.store.Save(r.Context(), id, dashboard.ViewSlot, &dashboard.ViewState{}); err != nil {
		s.storeFailure(w, r, "reset view", err)
		return
	}

	s.logger.Info("credential stored", zap.String("request_id", requestID(r)))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Drop(r.Context(), sessionID(r), dashboard.ViewSlot); err != nil {
		s.storeFailure(w, r, "drop session", err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// mutate runs fn against the session's view and saves the result.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(d *dashboard.Dashboard, view *dashboard.ViewState) error) {
	sc, ok := s.openSession(w, r)
	if !ok {
		return
	}

	fnErr := fn(s.dashboardFor(sc), &sc.view)
	switch {
	case errors.Is(fnErr, bankapi.ErrUnknownKind):
		http.Error(w, "Unknown transfer kind", http.StatusBadRequest)
		return
	case errors.Is(fnErr, dashboard.ErrSubmissionPending):
		// the outstanding submit saves the view when it finishes
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := s.saveView(r.Context(), sc); err != nil {
		s.storeFailure(w, r, "save view", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(d *dashboard.Dashboard, view *dashboard.ViewState) error {
		d.Reload(r.Context(), view)
		return nil
	})
}

func (s *Server) handleOpenTransfer(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	s.mutate(w, r, func(d *dashboard.Dashboard, view *dashboard.ViewState) error {
		return d.OpenTransfer(view, kind)
	})
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(d *dashboard.Dashboard, view *dashboard.ViewState) error {
		return d.CancelTransfer(view)
	})
}

func (s *Server) handleSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	amount, otp := r.FormValue("amount"), r.FormValue("otp")

	waited := s.shareSubmit(sessionID(r), func() {
		s.mutate(w, r, func(d *dashboard.Dashboard, view *dashboard.ViewState) error {
			err := d.SubmitTransfer(r.Context(), view, amount, otp)
			if errors.Is(err, dashboard.ErrSubmissionPending) {
				s.logger.Info("duplicate transfer submit rejected", zap.String("request_id", requestID(r)))
			}
			return err
		})
	})

	// the caller that ran the submit has already answered
	if waited {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// shareSubmit runs fn once for concurrent submits of one session and
// reports whether this caller only waited for another caller's run.
func (s *Server) shareSubmit(id string, fn func()) (waited bool) {
	ran := false
	_, _, _ = s.submits.Do(id, func() (interface{}, error) {
		ran = true
		fn()
		return nil, nil
	})
	return !ran
}

type viewResponse struct {
	Name  string              `json:"name"`
	View  dashboard.ViewState `json:"view"`
	Kinds []string            `json:"kinds"`
}

func (s *Server) handleViewJSON(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	token, err := s.store.Credential(r.Context(), id)
	if err != nil {
		if session.IsNotFound(err) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "not signed in"})
			return
		}
		s.storeFailure(w, r, "load credential", err)
		return
	}

	var view dashboard.ViewState
	if err := s.store.Load(r.Context(), id, dashboard.ViewSlot, &view); err != nil && !session.IsNotFound(err) {
		s.storeFailure(w, r, "load view", err)
		return
	}
	view.Dialog.OTP = ""

	kinds := make([]string, len(bankapi.TransferKinds))
	for i, k := range bankapi.TransferKinds {
		kinds[i] = k.String()
	}

	writeJSON(w, http.StatusOK, viewResponse{
		Name:  bankapi.IdentityFromToken(token).DisplayName(s.config.FallbackName),
		View:  view,
		Kinds: kinds,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "running",
		"timestamp":        time.Now().Unix(),
		"uptime":           time.Since(s.started).String(),
		"upstream_circuit": s.api.Breaker().State().String(),
	})
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.snapshot == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "metrics snapshot not enabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot.Snapshot())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
