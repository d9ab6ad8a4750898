package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourcal/internal/config"
	"tourcal/internal/model"
	"tourcal/internal/notify"
)

const agendaText = `Day 1 - 3/15/2025
8:00 AM - Breakfast at the hotel
10:00 AM - Colosseum tour
at Piazza del Colosseo.
1:00 PM - Lunch
3:00 PM - Train to Florence
`

type fixture struct {
	srv   *Server
	store *notify.Store
	h     http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}

	store := notify.NewStore()
	srv, err := NewServer(Options{
		Config:        cfg,
		Location:      time.UTC,
		Notifications: store,
		Now:           func() time.Time { return time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return fixture{srv: srv, store: store, h: srv.Handler()}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Options{Notifications: notify.NewStore()})
	assert.Error(t, err)
	_, err = NewServer(Options{Config: config.DefaultConfig()})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestUploadAndGetItinerary(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/itinerary", agendaText)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[itineraryResponse](t, rec)
	require.Len(t, resp.Items, 4)
	assert.Equal(t, 1, resp.CurrentIndex)
	require.NotNil(t, resp.Current)
	assert.Equal(t, "Colosseum tour", resp.Current.Activity)
	assert.Equal(t, "Piazza del Colosseo", resp.Current.Location)
	require.Len(t, resp.Next, 2)
	assert.Equal(t, "Lunch", resp.Next[0].Activity)

	// Only the items still ahead of 10:30 get reminders.
	assert.Empty(t, resp.Items[0].NotificationID)
	assert.Empty(t, resp.Items[1].NotificationID)
	assert.NotEmpty(t, resp.Items[2].NotificationID)
	assert.NotEmpty(t, resp.Items[3].NotificationID)
	assert.Equal(t, 2, f.store.UnreadCount())

	rec = f.do(t, http.MethodGet, "/api/itinerary?next=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[itineraryResponse](t, rec)
	require.Len(t, resp.Next, 1)
	assert.Equal(t, model.TypeMeal, resp.Next[0].Type)
}

func TestGetEmptyItinerary(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/itinerary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[itineraryResponse](t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 0, resp.CurrentIndex)
	assert.Nil(t, resp.Current)
}

func TestAddManualItem(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"date":"2025-03-15","time":"6:30 PM","activity":"Cooking class","location":"Trastevere","duration_minutes":120,"type":"attraction"}`
	rec := f.do(t, http.MethodPost, "/api/itinerary/items", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	item := decode[model.ItineraryItem](t, rec)
	assert.Equal(t, "6:30 PM", item.Time)
	assert.Equal(t, model.TypeAttraction, item.Type, "manual items keep their chosen type")
	assert.Equal(t, 120, item.Duration())
	assert.NotEmpty(t, item.NotificationID)

	items := f.srv.Itinerary()
	require.Len(t, items, 1)
	assert.Equal(t, "Cooking class", items[0].Activity)

	n, ok := f.store.Get(item.NotificationID)
	require.True(t, ok)
	assert.True(t, n.ScheduledAt.Equal(time.Date(2025, 3, 15, 18, 15, 0, 0, time.UTC)))
}

func TestAddManualItemDefaults(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/itinerary/items", `{"date":"2025-03-15","time":"4:00 PM","activity":"Gelato stop"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	item := decode[model.ItineraryItem](t, rec)
	assert.Equal(t, model.TypeAttraction, item.Type)
	require.NotNil(t, item.DurationMinutes)
	assert.Equal(t, 60, *item.DurationMinutes)

	rec = f.do(t, http.MethodPost, "/api/itinerary/items", `{"date":"2025-03-15","time":"5:00 PM","activity":"Photo stop","duration_minutes":0}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item = decode[model.ItineraryItem](t, rec)
	require.NotNil(t, item.DurationMinutes)
	assert.Equal(t, 0, *item.DurationMinutes, "an explicit zero is kept")
}

func TestAddManualItemRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	tests := map[string]string{
		"not json":      `{`,
		"unknown field": `{"date":"2025-03-15","time":"9:00","activity":"x","colour":"red"}`,
		"bad date":      `{"date":"15/03/2025","time":"9:00","activity":"x"}`,
		"bad time":      `{"date":"2025-03-15","time":"25:00","activity":"x"}`,
		"no activity":   `{"date":"2025-03-15","time":"9:00","activity":"  "}`,
		"bad type":      `{"date":"2025-03-15","time":"9:00","activity":"x","type":"party"}`,
		"negative":      `{"date":"2025-03-15","time":"9:00","activity":"x","duration_minutes":-5}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/itinerary/items", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, f.srv.Itinerary())
}

func TestExportAndImportCalendar(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/itinerary", agendaText).Code)

	rec := f.do(t, http.MethodGet, "/api/itinerary.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-Event-Count"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	cal := rec.Body.String()
	assert.Contains(t, cal, "BEGIN:VEVENT")
	assert.Contains(t, cal, "TRIGGER:-PT15M")

	other := newFixture(t, nil)
	rec = other.do(t, http.MethodPost, "/api/itinerary.ics", cal)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[itineraryResponse](t, rec)
	require.Len(t, resp.Items, 4)
	assert.Equal(t, "Colosseum tour", resp.Items[1].Activity)
	assert.Equal(t, 1, resp.CurrentIndex)

	rec = other.do(t, http.MethodPost, "/api/itinerary.ics", "not a calendar")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	id := f.store.Add("Upcoming: Lunch", "Starting in 15 minutes", time.Date(2025, 3, 15, 12, 45, 0, 0, time.UTC))

	rec := f.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[notificationsResponse](t, rec)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, 1, resp.UnreadCount)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/notifications/read?id="+id, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/notifications/read?id=nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/notifications/read", "").Code)
	assert.Equal(t, 0, f.store.UnreadCount())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodDelete, "/api/itinerary", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "guide", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code, "health stays open")

	rec := f.do(t, http.MethodGet, "/api/itinerary", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/itinerary", nil)
	req.SetBasicAuth("guide", "wrong")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/itinerary", nil)
	req.SetBasicAuth("guide", "secret")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
