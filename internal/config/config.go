package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	AuthPassword string

	DeepgramKey     string
	CerebrasKey     string
	CerebrasModelID string

	// ASR tuning
	ASRModel          string
	ASRLanguage       string
	ASREndpointingMs  string
	ASRUtteranceEndMs string

	// TTS voice model
	TTSModel string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription and speech will not work")
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	if cerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - interviewer responses will use fallbacks only")
	}
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "llama-4-maverick-17b-128e-instruct"
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - summaries will not be persisted")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:        addr,
		AuthPassword:       os.Getenv("AUTH_PASSWORD"),
		DeepgramKey:        deepgramKey,
		CerebrasKey:        cerebrasKey,
		CerebrasModelID:    cerebrasModel,
		ASRModel:           getEnv("ASR_MODEL", "nova-2"),
		ASRLanguage:        getEnv("ASR_LANGUAGE", "en-US"),
		ASREndpointingMs:   getEnv("ASR_ENDPOINTING_MS", "300"),
		ASRUtteranceEndMs:  getEnv("ASR_UTTERANCE_END_MS", "1000"),
		TTSModel:           getEnv("DEEPGRAM_TTS_MODEL", "aura-2-thalia-en"),
		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "interview-transcripts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
