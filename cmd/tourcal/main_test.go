package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourcal/internal/agenda"
	"tourcal/internal/ics"
	"tourcal/internal/model"
)

const agendaText = `Day 1 - 3/15/2025
8:00 AM - Breakfast at the hotel
10:00 AM - Colosseum tour
at Piazza del Colosseo.
Duration: 2 hours
1:00 PM - Lunch
3:00 PM - Train to Florence
`

type harness struct {
	dir    string
	config string
	agenda string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	dir := t.TempDir()
	h := harness{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		agenda: filepath.Join(dir, "rome.txt"),
	}
	require.NoError(t, os.WriteFile(h.config, []byte("timezone: UTC\nreminder_lead_minutes: 15\n"), 0o600))
	require.NoError(t, os.WriteFile(h.agenda, []byte(agendaText), 0o600))
	return h
}

func (h harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{now: func() time.Time { return time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC) }}
	cmd := newRootCmd(a)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", h.config))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "parse", h.agenda)
	require.NoError(t, err)

	var items []model.ItineraryItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 4)
	assert.Equal(t, "Colosseum tour", items[1].Activity)
	assert.Equal(t, "Piazza del Colosseo", items[1].Location)
	assert.Equal(t, 120, items[1].Duration())
	assert.Equal(t, model.TypeTransportation, items[3].Type)
}

func TestNowCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "now", h.agenda)
	require.NoError(t, err)
	assert.Contains(t, out, "Sat 15 Mar 2025 10:30 AM")
	assert.Regexp(t, `current\s+2025-03-15\s+10:00 AM\s+Colosseum tour`, out)
	assert.Contains(t, out, "Lunch")
	assert.Contains(t, out, "Train to Florence")

	out, err = h.run(t, "now", h.agenda, "--at", "2025-03-15T13:15:00Z", "--next", "1")
	require.NoError(t, err)
	assert.Regexp(t, `current\s+2025-03-15\s+1:00 PM\s+Lunch`, out)
	assert.Contains(t, out, "Train to Florence")

	_, err = h.run(t, "now", h.agenda, "--at", "tomorrow")
	assert.Error(t, err)
}

func TestNowCommandEmptyAgenda(t *testing.T) {
	h := newHarness(t)
	empty := filepath.Join(h.dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("Just some prose.\n"), 0o600))

	out, err := h.run(t, "now", empty)
	require.NoError(t, err)
	assert.Contains(t, out, "(no items)")
}

func TestRemindCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "remind", h.agenda)
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-15 12:45 PM")
	assert.Contains(t, out, "Upcoming: Lunch")
	assert.Contains(t, out, "2 reminder(s) scheduled")

	out, err = h.run(t, "remind", h.agenda, "--lead", "60", "--at", "2025-03-15T06:30:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-15 7:00 AM")
	assert.Contains(t, out, "Starting in 60 minutes")
	assert.Contains(t, out, "4 reminder(s) scheduled")
}

func TestExportImportCommands(t *testing.T) {
	h := newHarness(t)
	icsPath := filepath.Join(h.dir, "rome.ics")

	_, err := h.run(t, "export", h.agenda, "-o", icsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "X-WR-CALNAME:rome")
	assert.Contains(t, string(data), "TRIGGER:-PT15M")

	out, err := h.run(t, "import", icsPath, "--days", "2")
	require.NoError(t, err)

	var items []model.ItineraryItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 4)
	assert.Equal(t, "8:00 AM", items[0].Time)
	assert.Equal(t, "Piazza del Colosseo", items[1].Location)
	assert.Equal(t, 120, items[1].Duration())
}

type closeErrWriter struct {
	bytes.Buffer
	closed bool
}

func (w *closeErrWriter) Close() error {
	w.closed = true
	return errors.New("disk full")
}

func TestExportReportsCloseError(t *testing.T) {
	items := agenda.Parse(agendaText)
	day := items[0].Date
	opts := ics.ExportOptions{Location: time.UTC, DefaultDate: day, CalendarName: "rome"}

	w := &closeErrWriter{}
	n, err := exportAndClose(w, items, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, w.closed)
	assert.Equal(t, 4, n)
	assert.Contains(t, w.String(), "BEGIN:VCALENDAR")

	w = &closeErrWriter{}
	_, err = exportAndClose(w, items, ics.ExportOptions{Location: time.UTC, LeadMinutes: -1})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "disk full", "the export error wins over the close error")
	assert.True(t, w.closed)
}

func TestExportCommandUnwritableOutput(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "export", h.agenda, "-o", filepath.Join(h.dir, "missing", "rome.ics"))
	assert.Error(t, err)
}

func TestMissingInputFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "parse", filepath.Join(h.dir, "nope.txt"))
	assert.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.config, []byte("timezone: Nowhere/Special\n"), 0o600))
	_, err := h.run(t, "parse", h.agenda)
	assert.Error(t, err)
}
