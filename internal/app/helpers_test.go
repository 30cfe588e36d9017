package app

import (
	"testing"
	"time"

	"github.com/formdeck/core/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := parseTimezoneLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = parseTimezoneLocation("+05:30")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600+30*60, offset)

	loc, err = parseTimezoneLocation("-03:00")
	require.NoError(t, err)
	_, offset = time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -3*3600, offset)

	_, err = parseTimezoneLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "45s", humanizeDuration(45*time.Second+300*time.Millisecond))
	assert.Equal(t, "10m0s", humanizeDuration(10*time.Minute+20*time.Second))
	assert.Equal(t, "3h0m0s", humanizeDuration(3*time.Hour+5*time.Minute))
}

func TestMatchOriginPattern(t *testing.T) {
	assert.True(t, matchOriginPattern("*.example.com", "app.example.com"))
	assert.False(t, matchOriginPattern("*.example.com", "example.org"))
	assert.True(t, matchOriginPattern("localhost:*", "localhost:5173"))
	assert.Equal(t, "forms.example.com", extractOriginHost("https://forms.example.com"))
}

func TestCorsConfig(t *testing.T) {
	cfg := &config.AppConfig{Env: "production", AllowedOrigins: []string{"*.example.com"}}
	conf := corsConfig(cfg)
	assert.True(t, conf.AllowOriginFunc("https://app.example.com"))
	assert.False(t, conf.AllowOriginFunc("https://evil.test"))

	cfg.Env = "development"
	assert.True(t, corsConfig(cfg).AllowOriginFunc("https://evil.test"))
}
