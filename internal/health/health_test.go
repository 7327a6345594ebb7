package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yuzu/interview/internal/config"
)

func TestCheckAll(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("Authorization") == "Token dg":
			seen = append(seen, "deepgram")
		case r.Header.Get("x-goog-api-key") == "gm":
			seen = append(seen, "gemini")
		case r.Header.Get("Authorization") == "Bearer bad":
			w.WriteHeader(http.StatusUnauthorized)
			return
		default:
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	oldDG, oldGM := deepgramURL, geminiURL
	deepgramURL, geminiURL = srv.URL, srv.URL
	defer func() { deepgramURL, geminiURL = oldDG, oldGM }()

	var cfg config.Config
	cfg.Deepgram.APIKey = "dg"
	cfg.Gemini.APIKey = "gm"
	cfg.Analysis.Provider = "gemini"

	st := CheckAll(context.Background(), cfg)
	if !st.OK || len(st.Checks) != 2 {
		t.Fatalf("expected two passing checks, got %+v", st)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both probes to hit the server, got %v", seen)
	}

	cfg.Analysis.Provider = "openai"
	cfg.OpenAI.APIKey = "bad"
	cfg.OpenAI.BaseURL = srv.URL
	st = CheckAll(context.Background(), cfg)
	if st.OK || len(st.Checks) != 3 {
		t.Fatalf("expected openai failure, got %+v", st)
	}
	if !strings.Contains(st.Checks[2].Error, "401") {
		t.Fatalf("expected 401 error, got %q", st.Checks[2].Error)
	}
	if !strings.Contains(st.String(), "FAIL") {
		t.Fatalf("string form should report FAIL:\n%s", st)
	}
}

func TestMissingKeys(t *testing.T) {
	st := CheckAll(context.Background(), config.Config{})
	if st.OK {
		t.Fatalf("expected failure without keys")
	}
	for _, c := range st.Checks {
		if !strings.Contains(c.Error, "not set") {
			t.Fatalf("unexpected error for %s: %q", c.Name, c.Error)
		}
	}
}
