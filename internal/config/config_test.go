package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	for _, k := range []string{"PORT", "LOG_LEVEL", "MAX_SESSIONS", "STORAGE_BACKEND", "INTERVIEW_MAX_DURATION", "AUDIO_FLOOR_GUARD"} {
		os.Unsetenv(k)
	}

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Registry.MaxSessions != 50 {
		t.Fatalf("expected 50 max sessions, got %d", c.Registry.MaxSessions)
	}
	if c.Interview.MaxDuration != 30*time.Minute {
		t.Fatalf("expected 30m max duration, got %v", c.Interview.MaxDuration)
	}
	if c.Interview.CompletionThreshold != 0.7 || c.Interview.MaxFollowUps != 2 {
		t.Fatalf("unexpected decision defaults: %+v", c.Interview)
	}
	if c.Storage.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", c.Storage.Backend)
	}
	if c.Audio.FloorGuard != 300*time.Millisecond {
		t.Fatalf("expected 300ms guard, got %v", c.Audio.FloorGuard)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_SESSIONS", "3")
	t.Setenv("STORAGE_BACKEND", "Badger")
	t.Setenv("INTERVIEW_MAX_DURATION", "45m")

	c := Load()
	if c.Server.Port != "9999" || c.Registry.MaxSessions != 3 {
		t.Fatalf("env not applied: port=%s max=%d", c.Server.Port, c.Registry.MaxSessions)
	}
	if c.Storage.Backend != "badger" {
		t.Fatalf("backend should be lowercased, got %q", c.Storage.Backend)
	}
	if c.Interview.MaxDuration != 45*time.Minute {
		t.Fatalf("expected 45m, got %v", c.Interview.MaxDuration)
	}
}

func TestValidate(t *testing.T) {
	var c Config
	c.Storage.Backend = "memory"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected missing keys, got %v", err)
	}

	c.Gemini.APIKey, c.Deepgram.APIKey, c.Server.TokenSecret = "g", "d", "s"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	c.Storage.Backend = "postgres"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL, got %v", err)
	}
	c.Storage.Backend = "sqlite"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
