package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yuzu/interview/internal/config"
)

// Probe endpoints; tests point these at local servers.
var (
	deepgramURL = "https://api.deepgram.com/v1/projects"
	geminiURL   = "https://generativelanguage.googleapis.com/v1beta/models?pageSize=1"
	openAIURL   = "https://api.openai.com/v1/models"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll probes every provider the server depends on. OpenAI is only
// checked when it is the analysis backend.
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkDeepgram(ctx, cfg),
		checkGemini(ctx, cfg),
	}
	if cfg.Analysis.Provider == "openai" {
		checks = append(checks, checkOpenAI(ctx, cfg))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkDeepgram(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.Deepgram.APIKey == "" {
		return CheckResult{Name: "deepgram", Error: "DEEPGRAM_API_KEY not set"}
	}
	return probe(ctx, "deepgram", deepgramURL, func(r *http.Request) {
		r.Header.Set("Authorization", "Token "+cfg.Deepgram.APIKey)
	})
}

func checkGemini(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.Gemini.APIKey == "" {
		return CheckResult{Name: "gemini", Error: "GEMINI_API_KEY not set"}
	}
	return probe(ctx, "gemini", geminiURL, func(r *http.Request) {
		r.Header.Set("x-goog-api-key", cfg.Gemini.APIKey)
	})
}

func checkOpenAI(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.OpenAI.APIKey == "" {
		return CheckResult{Name: "openai", Error: "OPENAI_API_KEY not set"}
	}
	url := openAIURL
	if cfg.OpenAI.BaseURL != "" {
		url = strings.TrimSuffix(cfg.OpenAI.BaseURL, "/") + "/models"
	}
	return probe(ctx, "openai", url, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	})
}

// probe issues a lightweight authenticated GET and treats anything but 200
// as a failure.
func probe(ctx context.Context, name, url string, authorize func(*http.Request)) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	authorize(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		result.Error = fmt.Sprintf("invalid API key (%d)", resp.StatusCode)
		return result
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}
