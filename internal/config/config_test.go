package config

import (
	"log/slog"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"all set", Config{APIURL: "http://api", UploadURL: "http://up", SocketURL: "ws://sock"}, false},
		{"socket optional", Config{APIURL: "http://api", UploadURL: "http://up"}, false},
		{"missing api url", Config{UploadURL: "http://up"}, true},
		{"missing upload url", Config{APIURL: "http://api"}, true},
		{"nothing set", Config{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRealtimeEnabled(t *testing.T) {
	if (Config{SocketURL: "ws://sock"}).RealtimeEnabled() != true {
		t.Error("expected realtime enabled when socket URL set")
	}
	if (Config{}).RealtimeEnabled() != false {
		t.Error("expected realtime disabled when socket URL empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARKPILOT_API_URL", "http://api.example.com")
	t.Setenv("MARKPILOT_UPLOAD_URL", "")
	t.Setenv("MARKPILOT_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.APIURL != "http://api.example.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.StateDir == "" {
		t.Error("StateDir should have a default")
	}
	if cfg.LogFile == "" {
		t.Error("LogFile should have a default")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
