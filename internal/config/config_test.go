package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("CEREBRAS_MODEL_ID", "")
	os.Setenv("ASR_MODEL", "")
	os.Setenv("DEEPGRAM_TTS_MODEL", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
	if cfg.ASRModel == "" || cfg.ASRUtteranceEndMs == "" {
		t.Fatalf("expected ASR defaults")
	}
	if cfg.TTSModel == "" {
		t.Fatalf("expected default tts model")
	}
	if cfg.SupabaseBucket == "" {
		t.Fatalf("expected default supabase bucket")
	}
}

func TestLoad_Overrides(t *testing.T) {
	os.Setenv("ASR_UTTERANCE_END_MS", "1500")
	os.Setenv("DEEPGRAM_TTS_MODEL", "aura-2-orion-en")
	defer os.Unsetenv("ASR_UTTERANCE_END_MS")
	defer os.Unsetenv("DEEPGRAM_TTS_MODEL")
	cfg := Load()
	if cfg.ASRUtteranceEndMs != "1500" {
		t.Fatalf("expected utterance end override, got %s", cfg.ASRUtteranceEndMs)
	}
	if cfg.TTSModel != "aura-2-orion-en" {
		t.Fatalf("expected tts model override, got %s", cfg.TTSModel)
	}
}
