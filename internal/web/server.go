// Package web exposes the operator JSON API: one-off requests, the recurring
// pattern, the guest roster, and attempt history.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/auth"
	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/recurring"
	"github.com/example/teesched/internal/roster"
)

type Server struct {
	Auth     *auth.Store
	Requests *booking.Repo
	History  *history.Repo
	Roster   *roster.Repo
	Settings *recurring.SettingsRepo
	Trigger  func(ctx context.Context, req booking.Request)
	Log      *zap.Logger

	Loc           *time.Location
	Weekdays      []time.Weekday
	AheadDays     int
	ReleaseMinute int
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)

		r.Get("/requests", s.handleRequestList)
		r.Post("/requests", s.handleRequestCreate)
		r.Delete("/requests/{id}", s.handleRequestDelete)
		r.Post("/requests/{id}/trigger", s.handleRequestTrigger)

		r.Get("/occurrences", s.handleOccurrences)
		r.Get("/history", s.handleHistory)

		r.Get("/recurring", s.handleRecurringGet)
		r.Put("/recurring", s.handleRecurringPut)

		r.Get("/roster", s.handleRosterList)
		r.Put("/roster/{position}", s.handleRosterPut)
		r.Delete("/roster/{position}", s.handleRosterDelete)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeErr(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &in); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(in.Username), in.Password)
	if err != nil {
		s.writeErr(w, http.StatusUnauthorized, errors.New("invalid username/password"))
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

type requestJSON struct {
	ID         int64  `json:"id"`
	TargetDate string `json:"target_date"`
	Earliest   string `json:"earliest"`
	Latest     string `json:"latest"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	WindowOpen string `json:"window_open_at"`
	ChosenTime string `json:"chosen_time,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

func clock(min int) string { return fmt.Sprintf("%02d:%02d", min/60, min%60) }

func toJSON(q booking.Request) requestJSON {
	out := requestJSON{
		ID:         q.ID,
		TargetDate: q.TargetDate.Format("2006-01-02"),
		Earliest:   clock(q.EarliestMin),
		Latest:     clock(q.LatestMin),
		Kind:       string(q.Kind),
		Status:     string(q.Status),
		Attempts:   q.Attempts,
		WindowOpen: q.WindowOpenAt.Format(time.RFC3339),
		ChosenTime: q.ChosenTime,
	}
	if q.LastError != nil {
		out.LastError = *q.LastError
	}
	return out
}

func (s *Server) handleRequestList(w http.ResponseWriter, r *http.Request) {
	qs, err := s.Requests.List(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]requestJSON, 0, len(qs))
	for _, q := range qs {
		out = append(out, toJSON(q))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s *Server) handleRequestCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TargetDate string `json:"target_date"`
		Earliest   string `json:"earliest"`
		Latest     string `json:"latest"`
	}
	if err := readJSON(w, r, &in); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", in.TargetDate, s.Loc)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid target_date %q", in.TargetDate))
		return
	}
	earliest, err := parseClock(in.Earliest)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	latest, err := parseClock(in.Latest)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	q := booking.Request{
		TargetDate:   date,
		EarliestMin:  earliest,
		LatestMin:    latest,
		Kind:         booking.KindOneOff,
		WindowOpenAt: booking.WindowOpen(date, s.AheadDays, s.ReleaseMinute, s.Loc),
	}
	id, err := s.Requests.Create(r.Context(), q)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	q.ID = id
	q.Status = booking.StatusPending
	s.writeJSON(w, http.StatusCreated, toJSON(q))
}

func (s *Server) pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Requests.Delete(r.Context(), id); err != nil {
		if db.IsNotFound(err) {
			s.writeErr(w, http.StatusNotFound, err)
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRequestTrigger claims the request and fires an attempt in the
// background, sidestepping the window and cooldown checks. 202 means
// "attempt started", not "booked".
func (s *Server) handleRequestTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	q, err := s.Requests.GetByID(r.Context(), id)
	if err != nil {
		if db.IsNotFound(err) {
			s.writeErr(w, http.StatusNotFound, err)
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if q.Status == booking.StatusBooked {
		s.writeErr(w, http.StatusConflict, errors.New("request already booked"))
		return
	}
	won, err := s.Requests.ClaimImmediate(r.Context(), id)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !won {
		s.writeErr(w, http.StatusConflict, errors.New("request not claimable"))
		return
	}
	q.Attempts++
	go s.Trigger(context.WithoutCancel(r.Context()), q)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "attempting"})
}

func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	type occJSON struct {
		Date       string `json:"date"`
		Weekday    string `json:"weekday"`
		WindowOpen string `json:"window_open_at"`
		Released   bool   `json:"released"`
		Status     string `json:"status"`
	}
	now := time.Now().In(s.Loc)
	var out []occJSON
	for _, occ := range recurring.NextOccurrences(now, s.Weekdays, 6, s.Loc) {
		open := booking.WindowOpen(occ, s.AheadDays, s.ReleaseMinute, s.Loc)
		o := occJSON{
			Date:       occ.Format("2006-01-02"),
			Weekday:    occ.Weekday().String(),
			WindowOpen: open.Format(time.RFC3339),
			Released:   !open.After(now),
			Status:     "unattempted",
		}
		if q, err := s.Requests.GetLiveByDate(r.Context(), occ); err == nil {
			o.Status = string(q.Status)
		}
		out = append(out, o)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	es, err := s.History.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	type entryJSON struct {
		TargetDate string `json:"target_date"`
		DayLabel   string `json:"day_label"`
		Outcome    string `json:"outcome"`
		ChosenTime string `json:"chosen_time,omitempty"`
		Attempts   int    `json:"attempts"`
		Message    string `json:"message,omitempty"`
		At         string `json:"at"`
	}
	out := make([]entryJSON, 0, len(es))
	for _, e := range es {
		out = append(out, entryJSON{
			TargetDate: e.TargetDate.Format("2006-01-02"),
			DayLabel:   e.DayLabel,
			Outcome:    e.Outcome,
			ChosenTime: e.ChosenTime,
			Attempts:   e.Attempts,
			Message:    e.Message,
			At:         e.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type recurringJSON struct {
	Enabled        bool   `json:"enabled"`
	Earliest       string `json:"earliest"`
	Latest         string `json:"latest"`
	MaxOutstanding int    `json:"max_outstanding"`
}

func (s *Server) handleRecurringGet(w http.ResponseWriter, r *http.Request) {
	set, err := s.Settings.Get(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recurringJSON{
		Enabled:        set.Enabled,
		Earliest:       clock(set.EarliestMin),
		Latest:         clock(set.LatestMin),
		MaxOutstanding: set.MaxOutstanding,
	})
}

func (s *Server) handleRecurringPut(w http.ResponseWriter, r *http.Request) {
	var in recurringJSON
	if err := readJSON(w, r, &in); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	earliest, err := parseClock(in.Earliest)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	latest, err := parseClock(in.Latest)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if latest < earliest {
		s.writeErr(w, http.StatusBadRequest, errors.New("latest must not be earlier than earliest"))
		return
	}
	if in.MaxOutstanding < 1 {
		s.writeErr(w, http.StatusBadRequest, errors.New("max_outstanding must be at least 1"))
		return
	}
	set := recurring.Settings{
		Enabled:        in.Enabled,
		EarliestMin:    earliest,
		LatestMin:      latest,
		MaxOutstanding: in.MaxOutstanding,
	}
	if err := s.Settings.Update(r.Context(), set); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, in)
}

type guestJSON struct {
	Position  int    `json:"position"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	MemberNo  string `json:"member_no"`
}

func (s *Server) handleRosterList(w http.ResponseWriter, r *http.Request) {
	gs, err := s.Roster.List(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]guestJSON, 0, len(gs))
	for _, g := range gs {
		out = append(out, guestJSON{Position: g.Position, FirstName: g.FirstName, LastName: g.LastName, MemberNo: g.MemberNo})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) pathPosition(r *http.Request) (int, error) {
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || pos < 1 || pos > 4 {
		return 0, fmt.Errorf("position must be 1-4")
	}
	return pos, nil
}

func (s *Server) handleRosterPut(w http.ResponseWriter, r *http.Request) {
	pos, err := s.pathPosition(r)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	var in guestJSON
	if err := readJSON(w, r, &in); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.MemberNo) == "" {
		s.writeErr(w, http.StatusBadRequest, errors.New("first_name and member_no are required"))
		return
	}
	g := roster.Guest{
		Position:  pos,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		MemberNo:  strings.TrimSpace(in.MemberNo),
	}
	if err := s.Roster.Put(r.Context(), g); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	in.Position = pos
	s.writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleRosterDelete(w http.ResponseWriter, r *http.Request) {
	pos, err := s.pathPosition(r)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Roster.Remove(r.Context(), pos); err != nil {
		if db.IsNotFound(err) {
			s.writeErr(w, http.StatusNotFound, err)
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start serves h until ctx is cancelled, then drains for up to five seconds.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("http listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
