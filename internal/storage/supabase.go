// Package storage persists finished interview summaries.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/interview-agent/internal/interview"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Enabled reports whether enough configuration is present to persist.
func (c Config) Enabled() bool { return c.URL != "" && c.ServiceRoleKey != "" }

// SupabaseStore uploads one JSON document per finished interview into a
// storage bucket.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

func New(cfg Config) (*SupabaseStore, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: cfg.Bucket}, nil
}

// SaveSummary uploads the summary as interviews/<id>-<date>.json.
func (s *SupabaseStore) SaveSummary(id string, sum interview.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	key := fmt.Sprintf("interviews/%s-%s.json", id, time.Now().UTC().Format("20060102T150405"))
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

// NopStore discards summaries; used when persistence is not configured.
type NopStore struct{}

func (NopStore) SaveSummary(string, interview.Summary) error { return nil }
