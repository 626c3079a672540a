package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/interview-agent/internal/asr"
	"github.com/chadiek/interview-agent/internal/config"
	"github.com/chadiek/interview-agent/internal/httpserver"
	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/llm"
	"github.com/chadiek/interview-agent/internal/session"
	"github.com/chadiek/interview-agent/internal/storage"
	"github.com/chadiek/interview-agent/internal/tts"
	"github.com/chadiek/interview-agent/internal/vad"
)

// All audio in and out of the service is 48kHz mono 16-bit PCM.
const sampleRate = 48000

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var store session.Store = storage.NopStore{}
	storageCfg := storage.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceKey,
		Bucket:         cfg.SupabaseBucket,
	}
	if storageCfg.Enabled() {
		s, err := storage.New(storageCfg)
		if err != nil {
			log.Fatalf("storage init: %v", err)
		}
		store = s
	} else {
		log.Printf("warning: summary persistence not configured, transcripts are kept in memory only")
	}

	factory := func(id string, icfg interview.Config, ev session.Events, sink tts.PCMSink) (httpserver.Runner, error) {
		transport := asr.NewDeepgramLive(cfg.DeepgramKey, asr.Options{
			Model:          cfg.ASRModel,
			Language:       cfg.ASRLanguage,
			SampleRate:     sampleRate,
			EndpointingMs:  cfg.ASREndpointingMs,
			UtteranceEndMs: cfg.ASRUtteranceEndMs,
		})
		brain := llm.NewInterviewer(llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID))
		deps := session.Deps{
			Transport:   transport,
			Interviewer: brain,
			Store:       store,
			Voice:       vad.NewDetector(sampleRate),
			NewSpeaker: func(pe tts.PlayerEvents) session.Speaker {
				synth := tts.NewDeepgramSpeaker(cfg.DeepgramKey, cfg.TTSModel)
				return tts.NewPlayer(synth, sink, sampleRate, pe)
			},
		}
		creds := session.Credentials{ASRKey: cfg.DeepgramKey, LLMKey: cfg.CerebrasKey}
		return session.New(id, icfg, creds, deps, ev)
	}

	srv := httpserver.NewServer(cfg.AuthPassword, factory)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	srv.EndAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
