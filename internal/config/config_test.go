package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourcal/internal/model"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{
		ReminderLeadMinutes: -3,
		BasicAuth:           &BasicAuthConfig{},
	}
	cfg.Normalize()

	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultTimezone, cfg.Timezone)
	assert.Equal(t, defaultLeadMinutes, cfg.ReminderLeadMinutes)
	assert.Equal(t, defaultLookahead, cfg.Lookahead)
	assert.Equal(t, defaultPoll, cfg.Poll)
	assert.Equal(t, 30*24*time.Hour, cfg.ImportHorizon())
	assert.Nil(t, cfg.BasicAuth, "empty credentials disable auth")

	zeroLead := &Config{ReminderLeadMinutes: 0}
	zeroLead.Normalize()
	assert.Equal(t, 0, zeroLead.ReminderLeadMinutes, "zero lead is a valid choice")
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tourcal.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tourcal.yaml")

	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.ReminderLeadMinutes = 30
	cfg.Keywords = map[string][]string{"meal": {"aperitivo", "pranzo"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "guide", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	c, err := loaded.Classifier()
	require.NoError(t, err)
	assert.Equal(t, model.TypeMeal, c.Classify("Aperitivo on the terrace"))
	assert.Equal(t, model.TypeOther, c.Classify("Lunch"), "replaced keywords no longer match")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"bad yaml":     "listen: [",
		"bad timezone": "timezone: Mars/Olympus_Mons\n",
		"bad keywords": "keywords:\n  sightseeing: [view]\n",
		"other typed":  "keywords:\n  other: [misc]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "x.yaml"), nil))
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
