package main

import (
	"context"
	"testing"

	"yuzu/interview/internal/config"
)

func TestAudioURL(t *testing.T) {
	var cfg config.Config
	cfg.Server.Port = "8080"
	if got := audioURL(cfg); got != "ws://localhost:8080/ws/audio" {
		t.Fatalf("got %q", got)
	}
	cfg.Server.PublicURL = "https://interviews.example.com/"
	if got := audioURL(cfg); got != "wss://interviews.example.com/ws/audio" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenStore(t *testing.T) {
	var cfg config.Config
	cfg.Storage.Backend = "memory"
	st, rd, closeFn, err := openStore(context.Background(), cfg)
	if err != nil || st == nil || rd == nil {
		t.Fatalf("memory store: %v", err)
	}
	closeFn()

	cfg.Storage.Backend = "badger"
	cfg.Storage.BadgerDir = t.TempDir()
	st, rd, closeFn, err = openStore(context.Background(), cfg)
	if err != nil || st == nil || rd == nil {
		t.Fatalf("badger store: %v", err)
	}
	closeFn()

	cfg.Storage.Backend = "sqlite"
	if _, _, _, err := openStore(context.Background(), cfg); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
