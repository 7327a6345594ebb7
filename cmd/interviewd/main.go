package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"yuzu/interview/internal/analysis"
	"yuzu/interview/internal/api"
	"yuzu/interview/internal/config"
	"yuzu/interview/internal/decision"
	"yuzu/interview/internal/events"
	"yuzu/interview/internal/floor"
	probes "yuzu/interview/internal/health"
	"yuzu/interview/internal/questions"
	"yuzu/interview/internal/registry"
	"yuzu/interview/internal/session"
	"yuzu/interview/internal/stt"
	"yuzu/interview/internal/transport"
	"yuzu/interview/internal/voice"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	bank, err := questions.Load(cfg.Interview.QuestionsFile)
	if err != nil {
		log.Fatalf("questions: %v", err)
	}
	store, records, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	model, err := analysis.NewModel(ctx, cfg.Analysis.Provider,
		analysis.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Analysis.GeminiModel},
		analysis.OpenAIConfig{APIKey: cfg.OpenAI.APIKey, Model: cfg.OpenAI.Model, BaseURL: cfg.OpenAI.BaseURL},
	)
	if err != nil {
		log.Fatalf("analysis model: %v", err)
	}

	evs := events.NewLog(cfg.Storage.EventLogSize)

	factory := func(sessionID, userID string) (registry.Session, error) {
		dg := stt.DefaultDeepgramConfig()
		dg.APIKey = cfg.Deepgram.APIKey
		dg.BaseURL = cfg.Deepgram.BaseURL
		dg.Model = cfg.Deepgram.Model
		dg.Language = cfg.Deepgram.Language

		s, err := session.New(session.Config{
			SessionID: sessionID,
			UserID:    userID,
			Questions: bank,
			Voice: voice.New(voice.Config{
				APIKey:             cfg.Gemini.APIKey,
				BaseURL:            cfg.Gemini.BaseURL,
				Model:              cfg.Gemini.Model,
				Voice:              cfg.Gemini.Voice,
				InputTranscription: cfg.Gemini.InputTranscription,
			}),
			STT:      stt.NewDeepgram(dg),
			Analyzer: analysis.New(model, cfg.Analysis.Timeout),
			Store:    store,
			Events:   evs,
			Decision: decision.Config{
				MinTranscriptLength:     cfg.Interview.MinTranscriptLength,
				CompletionThreshold:     cfg.Interview.CompletionThreshold,
				MaxFollowUpsPerQuestion: cfg.Interview.MaxFollowUps,
			},
			Floor: floor.Config{
				MinRMS:   cfg.Audio.FloorMinRMS,
				Guard:    cfg.Audio.FloorGuard,
				MinStart: cfg.Audio.FloorMinStart,
			},
			SilenceThreshold:   cfg.Interview.SilenceThreshold,
			MaxDuration:        cfg.Interview.MaxDuration,
			CheckpointInterval: cfg.Interview.CheckpointInterval,
			GoodbyeGrace:       cfg.Interview.GoodbyeGrace,
			SpeechMinRMS:       cfg.Audio.SpeechMinRMS,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	reg := registry.New(factory, cfg.Registry.MaxSessions)
	reg.OnRemove(evs.Forget)
	reg.StartSweeper(ctx, cfg.Registry.SweepInterval, cfg.Registry.StaleAfter)

	h := api.NewHandlers(api.Options{
		Registry:    reg,
		Events:      evs,
		Records:     records,
		TokenSecret: cfg.Server.TokenSecret,
		TokenTTL:    cfg.Server.TokenTTL,
		AudioURL:    audioURL(cfg),
		Ready: func(ctx context.Context) probes.HealthStatus {
			return probes.CheckAll(ctx, cfg)
		},
	})
	bridge := transport.NewBridge(cfg.Server.TokenSecret, cfg.Server.TokenSkew, reg, evs)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.Handle("/ws/audio", bridge)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC health for load balancers: NOT_SERVING at capacity or while draining.
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go watchCapacity(ctx, reg, hs)
	gl, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go func() {
		log.Printf("grpc health listening on %s", gl.Addr())
		if err := gs.Serve(gl); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		hs.Shutdown()
		stop()
		// Live interviews end, and persist, before the listener closes.
		reg.Shutdown("shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
	}()

	log.Printf("server starting on %s (audio %s)", addr, audioURL(cfg))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		closeStore()
		os.Exit(1)
	}
	closeStore()
}

// watchCapacity keeps the health status in step with registry capacity.
func watchCapacity(ctx context.Context, reg *registry.Registry, hs *health.Server) {
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		want := healthpb.HealthCheckResponse_SERVING
		if reg.AtCapacity() {
			want = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if want != last {
			hs.SetServingStatus("", want)
			last = want
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func audioURL(cfg config.Config) string {
	base := cfg.Server.PublicURL
	if base == "" {
		base = "ws://localhost:" + cfg.Server.Port
	}
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/audio"
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
