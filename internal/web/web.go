package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"tourcal/internal/agenda"
	"tourcal/internal/config"
	"tourcal/internal/ics"
	appLog "tourcal/internal/log"
	"tourcal/internal/model"
	"tourcal/internal/notify"
	"tourcal/internal/schedule"
)

const maxBodyBytes = 1 << 20

// Defaults for fields a manual item request leaves out.
const (
	defaultManualType     = model.TypeAttraction
	defaultManualDuration = 60
)

// Options wires a Server to the rest of the application.
type Options struct {
	Config        *config.Config
	Location      *time.Location
	Classifier    *agenda.Classifier
	Notifications *notify.Store

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Server exposes the itinerary and its reminders over a JSON API. The
// itinerary lives in memory and is replaced wholesale by each upload.
type Server struct {
	cfg    *config.Config
	loc    *time.Location
	parser *agenda.Parser
	class  *agenda.Classifier
	store  *notify.Store
	now    func() time.Time
	mux    *http.ServeMux

	mu    sync.RWMutex
	items []model.ItineraryItem
}

// NewServer constructs a new Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("web: config is nil")
	}
	if opts.Notifications == nil {
		return nil, errors.New("web: notification store is nil")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Classifier == nil {
		opts.Classifier = agenda.DefaultClassifier()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		cfg:    opts.Config,
		loc:    opts.Location,
		parser: agenda.NewParser(opts.Classifier),
		class:  opts.Classifier,
		store:  opts.Notifications,
		now:    opts.Now,
		mux:    http.NewServeMux(),
		items:  []model.ItineraryItem{},
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// SetItinerary replaces the in-memory itinerary.
func (s *Server) SetItinerary(items []model.ItineraryItem) {
	cp := make([]model.ItineraryItem, len(items))
	copy(cp, items)

	s.mu.Lock()
	s.items = cp
	s.mu.Unlock()
}

// Itinerary returns a copy of the in-memory itinerary.
func (s *Server) Itinerary() []model.ItineraryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ItineraryItem, len(s.items))
	copy(out, s.items)
	return out
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tourcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/itinerary", s.handleGetItinerary)
	s.mux.HandleFunc("POST /api/itinerary", s.handleUploadItinerary)
	s.mux.HandleFunc("POST /api/itinerary/items", s.handleAddItem)
	s.mux.HandleFunc("GET /api/itinerary.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/itinerary.ics", s.handleImport)
	s.mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /api/notifications/read", s.handleMarkRead)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// itineraryResponse is the JSON shape of GET/POST /api/itinerary.
type itineraryResponse struct {
	Now          time.Time             `json:"now"`
	Items        []model.ItineraryItem `json:"items"`
	CurrentIndex int                   `json:"current_index"`
	Current      *model.ItineraryItem  `json:"current,omitempty"`
	Next         []model.ItineraryItem `json:"next"`
}

func (s *Server) itineraryView(lookahead int) itineraryResponse {
	now := s.now().In(s.loc)
	items := s.Itinerary()
	v := schedule.Resolve(items, now, lookahead)
	return itineraryResponse{
		Now:          now,
		Items:        items,
		CurrentIndex: v.CurrentIndex,
		Current:      v.Current,
		Next:         v.Next,
	}
}

// GET /api/itinerary?next=N
func (s *Server) handleGetItinerary(w http.ResponseWriter, r *http.Request) {
	lookahead := parseIntDefault(r.URL.Query().Get("next"), s.cfg.Lookahead)
	if lookahead < 0 {
		lookahead = s.cfg.Lookahead
	}
	writeJSON(w, http.StatusOK, s.itineraryView(lookahead))
}

// POST /api/itinerary with the agenda as plain text. The parsed itinerary
// replaces the current one and reminders are scheduled for its items.
func (s *Server) handleUploadItinerary(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := s.parser.Parse(string(body))
	items = schedule.ScheduleAll(s.store, items, s.cfg.ReminderLeadMinutes, s.now().In(s.loc))
	s.SetItinerary(items)

	appLog.Info("itinerary uploaded", "bytes", len(body), "items", len(items))
	writeJSON(w, http.StatusOK, s.itineraryView(s.cfg.Lookahead))
}

// POST /api/itinerary.ics with an iCalendar body. Imported events replace
// the current itinerary.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := ics.Import(bytes.NewReader(body), ics.ImportOptions{
		Location:   s.loc,
		Horizon:    s.cfg.ImportHorizon(),
		Classifier: s.class,
	})
	if err != nil {
		appLog.Warn("calendar import rejected", "reason", err.Error())
		writeError(w, http.StatusBadRequest, "invalid calendar: "+err.Error())
		return
	}

	items = schedule.ScheduleAll(s.store, items, s.cfg.ReminderLeadMinutes, s.now().In(s.loc))
	s.SetItinerary(items)
	writeJSON(w, http.StatusOK, s.itineraryView(s.cfg.Lookahead))
}

// manualItemRequest is the body of POST /api/itinerary/items.
type manualItemRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	Activity        string `json:"activity"`
	Location        string `json:"location"`
	DurationMinutes *int   `json:"duration_minutes"`
	Notes           string `json:"notes"`
	Type            string `json:"type"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req manualItemRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	item, err := req.toItem()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id, ok := schedule.ScheduleReminder(s.store, item, s.cfg.ReminderLeadMinutes, s.now().In(s.loc)); ok {
		item.NotificationID = id
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	appLog.Info("manual item added", "activity", item.Activity, "type", string(item.Type))
	writeJSON(w, http.StatusCreated, item)
}

func (req manualItemRequest) toItem() (model.ItineraryItem, error) {
	d, err := civil.ParseDate(req.Date)
	if err != nil {
		return model.ItineraryItem{}, fmt.Errorf("invalid date %q", req.Date)
	}
	clock, err := model.ParseClock(req.Time)
	if err != nil {
		return model.ItineraryItem{}, err
	}
	typ := defaultManualType
	if req.Type != "" {
		if typ, err = model.ParseActivityType(req.Type); err != nil {
			return model.ItineraryItem{}, err
		}
	}
	duration := defaultManualDuration
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	return model.NewManualItem(d, clock, req.Activity, req.Location, duration, req.Notes, typ)
}

// GET /api/itinerary.ics
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	today := civil.DateOf(s.now().In(s.loc))

	var buf bytes.Buffer
	n, err := ics.Export(&buf, s.Itinerary(), ics.ExportOptions{
		Location:     s.loc,
		DefaultDate:  &today,
		LeadMinutes:  s.cfg.ReminderLeadMinutes,
		CalendarName: "Itinerary",
	})
	if err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export itinerary")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="itinerary.ics"`)
	w.Header().Set("X-Event-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// notificationsResponse is the JSON shape of GET /api/notifications.
type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: s.store.All(),
		UnreadCount:   s.store.UnreadCount(),
	})
}

// POST /api/notifications/read?id=...
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if _, ok := s.store.Get(id); !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	s.store.MarkRead(id)
	w.WriteHeader(http.StatusNoContent)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
