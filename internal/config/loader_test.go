package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  jwt_secret: test-secret
credentials:
  keys: ["key-a", "key-b"]
  max_per_key: 2
workers:
  backend: docker
  image: moyeo/worker:latest
llm:
  provider: openai
  model: gpt-4o-mini
tts:
  base_url: http://localhost:5002
  voice: budeok
database:
  dsn: postgres://localhost/moyeo
  embedding_dimensions: 1536
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFromReader(strings.NewReader(validYAML))
		if err != nil {
			t.Fatalf("LoadFromReader() error = %v", err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
		}
		if len(cfg.Credentials.Keys) != 2 {
			t.Errorf("got %d credential keys, want 2", len(cfg.Credentials.Keys))
		}
		if cfg.Workers.Backend != BackendDocker {
			t.Errorf("Backend = %q, want docker", cfg.Workers.Backend)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("bogus_field: 1\n"))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		in := strings.Replace(validYAML, "log_level: info", "log_level: loud", 1)
		_, err := LoadFromReader(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "log_level") {
			t.Errorf("expected log_level error, got %v", err)
		}
	})

	t.Run("missing credential keys", func(t *testing.T) {
		t.Parallel()
		in := strings.Replace(validYAML, `keys: ["key-a", "key-b"]`, "keys: []", 1)
		_, err := LoadFromReader(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "credentials.keys") {
			t.Errorf("expected credentials.keys error, got %v", err)
		}
	})

	t.Run("jobs backend requires url", func(t *testing.T) {
		t.Parallel()
		in := strings.Replace(validYAML, "backend: docker", "backend: jobs", 1)
		in = strings.Replace(in, "image: moyeo/worker:latest", "", 1)
		_, err := LoadFromReader(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "jobs_url") {
			t.Errorf("expected jobs_url error, got %v", err)
		}
	})

	t.Run("shared credentials require redis", func(t *testing.T) {
		t.Parallel()
		in := strings.Replace(validYAML, "max_per_key: 2", "max_per_key: 2\n  shared: true", 1)
		_, err := LoadFromReader(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "redis.addr") {
			t.Errorf("expected redis.addr error, got %v", err)
		}
	})

	t.Run("multiple failures joined", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("server: {}\n"))
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"jwt_secret", "credentials.keys", "llm.provider"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q missing %q", err, want)
			}
		}
	})
}
