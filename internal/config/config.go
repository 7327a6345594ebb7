package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port          string
		GRPCPort      string
		LogLevel      string
		PublicURL     string
		TokenSecret   string
		TokenTTL      time.Duration
		TokenSkew     time.Duration
		ShutdownGrace time.Duration
	}
	Registry struct {
		MaxSessions   int
		StaleAfter    time.Duration
		SweepInterval time.Duration
	}
	Interview struct {
		QuestionsFile       string
		MaxDuration         time.Duration
		SilenceThreshold    time.Duration
		CheckpointInterval  time.Duration
		GoodbyeGrace        time.Duration
		MinTranscriptLength int
		CompletionThreshold float64
		MaxFollowUps        int
	}
	Gemini struct {
		APIKey             string
		BaseURL            string
		Model              string
		Voice              string
		InputTranscription bool
	}
	OpenAI struct {
		APIKey  string
		BaseURL string
		Model   string
	}
	Analysis struct {
		Provider    string
		GeminiModel string
		Timeout     time.Duration
	}
	Deepgram struct {
		APIKey   string
		BaseURL  string
		Model    string
		Language string
	}
	Storage struct {
		Backend      string // memory | badger | postgres | s3 | tee
		BadgerDir    string
		PostgresDSN  string
		EventLogSize int
	}
	S3 struct {
		Bucket    string
		Prefix    string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
		PathStyle bool
	}
	Audio struct {
		FloorMinRMS  float64
		FloorGuard   time.Duration
		FloorMinStart int
		SpeechMinRMS float64
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.token_ttl", "30m")
	v.SetDefault("server.token_skew", "30s")
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("registry.max_sessions", 50)
	v.SetDefault("registry.stale_after", "2h")
	v.SetDefault("registry.sweep_interval", "5m")

	v.SetDefault("interview.max_duration", "30m")
	v.SetDefault("interview.silence_threshold", "4000ms")
	v.SetDefault("interview.checkpoint_interval", "60s")
	v.SetDefault("interview.goodbye_grace", "5s")
	v.SetDefault("interview.min_transcript_length", 20)
	v.SetDefault("interview.completion_threshold", 0.7)
	v.SetDefault("interview.max_followups", 2)

	v.SetDefault("gemini.input_transcription", true)

	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("analysis.provider", "gemini")
	v.SetDefault("analysis.gemini_model", "gemini-2.0-flash")
	v.SetDefault("analysis.timeout", "5s")

	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en-US")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.badger_dir", "./data/interviews")
	v.SetDefault("storage.event_log_size", 200)

	v.SetDefault("s3.prefix", "interviews")
	v.SetDefault("s3.region", "us-east-1")

	v.SetDefault("audio.floor_min_rms", 500)
	v.SetDefault("audio.floor_guard", "300ms")
	v.SetDefault("audio.floor_min_start", 2)
	v.SetDefault("audio.speech_min_rms", 400)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.public_url", "PUBLIC_URL")
	v.BindEnv("server.token_secret", "AUDIO_TOKEN_SECRET")
	v.BindEnv("server.token_ttl", "AUDIO_TOKEN_TTL")
	v.BindEnv("server.token_skew", "AUDIO_TOKEN_SKEW")
	v.BindEnv("server.shutdown_grace", "SHUTDOWN_GRACE")

	v.BindEnv("registry.max_sessions", "MAX_SESSIONS")
	v.BindEnv("registry.stale_after", "SESSION_STALE_AFTER")
	v.BindEnv("registry.sweep_interval", "SESSION_SWEEP_INTERVAL")

	v.BindEnv("interview.questions_file", "INTERVIEW_QUESTIONS_FILE")
	v.BindEnv("interview.max_duration", "INTERVIEW_MAX_DURATION")
	v.BindEnv("interview.silence_threshold", "INTERVIEW_SILENCE_THRESHOLD")
	v.BindEnv("interview.checkpoint_interval", "INTERVIEW_CHECKPOINT_INTERVAL")
	v.BindEnv("interview.goodbye_grace", "INTERVIEW_GOODBYE_GRACE")
	v.BindEnv("interview.min_transcript_length", "INTERVIEW_MIN_TRANSCRIPT_LENGTH")
	v.BindEnv("interview.completion_threshold", "INTERVIEW_COMPLETION_THRESHOLD")
	v.BindEnv("interview.max_followups", "INTERVIEW_MAX_FOLLOWUPS")

	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("gemini.base_url", "GEMINI_LIVE_URL")
	v.BindEnv("gemini.model", "GEMINI_LIVE_MODEL")
	v.BindEnv("gemini.voice", "GEMINI_VOICE")
	v.BindEnv("gemini.input_transcription", "GEMINI_INPUT_TRANSCRIPTION")

	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("openai.model", "OPENAI_MODEL")

	v.BindEnv("analysis.provider", "ANALYSIS_PROVIDER")
	v.BindEnv("analysis.gemini_model", "ANALYSIS_GEMINI_MODEL")
	v.BindEnv("analysis.timeout", "ANALYSIS_TIMEOUT")

	v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("deepgram.base_url", "DEEPGRAM_URL")
	v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
	v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")

	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.badger_dir", "BADGER_DIR")
	v.BindEnv("storage.postgres_dsn", "DATABASE_URL")
	v.BindEnv("storage.event_log_size", "EVENT_LOG_SIZE")

	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.prefix", "S3_PREFIX")
	v.BindEnv("s3.region", "S3_REGION")
	v.BindEnv("s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("s3.access_key", "S3_ACCESS_KEY")
	v.BindEnv("s3.secret_key", "S3_SECRET_KEY")
	v.BindEnv("s3.path_style", "S3_PATH_STYLE")

	v.BindEnv("audio.floor_min_rms", "AUDIO_FLOOR_MIN_RMS")
	v.BindEnv("audio.floor_guard", "AUDIO_FLOOR_GUARD")
	v.BindEnv("audio.floor_min_start", "AUDIO_FLOOR_MIN_START")
	v.BindEnv("audio.speech_min_rms", "AUDIO_SPEECH_MIN_RMS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.PublicURL = v.GetString("server.public_url")
	c.Server.TokenSecret = v.GetString("server.token_secret")
	c.Server.TokenTTL = v.GetDuration("server.token_ttl")
	c.Server.TokenSkew = v.GetDuration("server.token_skew")
	c.Server.ShutdownGrace = v.GetDuration("server.shutdown_grace")

	c.Registry.MaxSessions = v.GetInt("registry.max_sessions")
	c.Registry.StaleAfter = v.GetDuration("registry.stale_after")
	c.Registry.SweepInterval = v.GetDuration("registry.sweep_interval")

	c.Interview.QuestionsFile = v.GetString("interview.questions_file")
	c.Interview.MaxDuration = v.GetDuration("interview.max_duration")
	c.Interview.SilenceThreshold = v.GetDuration("interview.silence_threshold")
	c.Interview.CheckpointInterval = v.GetDuration("interview.checkpoint_interval")
	c.Interview.GoodbyeGrace = v.GetDuration("interview.goodbye_grace")
	c.Interview.MinTranscriptLength = v.GetInt("interview.min_transcript_length")
	c.Interview.CompletionThreshold = v.GetFloat64("interview.completion_threshold")
	c.Interview.MaxFollowUps = v.GetInt("interview.max_followups")

	c.Gemini.APIKey = v.GetString("gemini.api_key")
	c.Gemini.BaseURL = v.GetString("gemini.base_url")
	c.Gemini.Model = v.GetString("gemini.model")
	c.Gemini.Voice = v.GetString("gemini.voice")
	c.Gemini.InputTranscription = v.GetBool("gemini.input_transcription")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.BaseURL = v.GetString("openai.base_url")
	c.OpenAI.Model = v.GetString("openai.model")

	c.Analysis.Provider = v.GetString("analysis.provider")
	c.Analysis.GeminiModel = v.GetString("analysis.gemini_model")
	c.Analysis.Timeout = v.GetDuration("analysis.timeout")

	c.Deepgram.APIKey = v.GetString("deepgram.api_key")
	c.Deepgram.BaseURL = v.GetString("deepgram.base_url")
	c.Deepgram.Model = v.GetString("deepgram.model")
	c.Deepgram.Language = v.GetString("deepgram.language")

	c.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	c.Storage.BadgerDir = v.GetString("storage.badger_dir")
	c.Storage.PostgresDSN = v.GetString("storage.postgres_dsn")
	c.Storage.EventLogSize = v.GetInt("storage.event_log_size")

	c.S3.Bucket = v.GetString("s3.bucket")
	c.S3.Prefix = v.GetString("s3.prefix")
	c.S3.Region = v.GetString("s3.region")
	c.S3.Endpoint = v.GetString("s3.endpoint")
	c.S3.AccessKey = v.GetString("s3.access_key")
	c.S3.SecretKey = v.GetString("s3.secret_key")
	c.S3.PathStyle = v.GetBool("s3.path_style")

	c.Audio.FloorMinRMS = v.GetFloat64("audio.floor_min_rms")
	c.Audio.FloorGuard = v.GetDuration("audio.floor_guard")
	c.Audio.FloorMinStart = v.GetInt("audio.floor_min_start")
	c.Audio.SpeechMinRMS = v.GetFloat64("audio.speech_min_rms")

	log.Printf("config loaded: port=%s storage=%s analysis=%s max_sessions=%d",
		c.Server.Port, c.Storage.Backend, c.Analysis.Provider, c.Registry.MaxSessions)
	return c
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Deepgram.APIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if c.Server.TokenSecret == "" {
		missing = append(missing, "AUDIO_TOKEN_SECRET")
	}
	if c.Analysis.Provider == "openai" && c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.Storage.Backend {
	case "memory", "badger":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "s3", "tee":
		if c.S3.Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func toString(v any) string { return fmt.Sprint(v) }
