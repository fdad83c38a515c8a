package logging

import (
	"testing"

	"github.com/beyawnko/Majestik-World/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestBuildConfig(t *testing.T) {
	cases := []struct {
		in       config.LoggingConfig
		level    zapcore.Level
		encoding string
	}{
		{config.LoggingConfig{Level: "debug", Format: "json"}, zapcore.DebugLevel, "json"},
		{config.LoggingConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel, "console"},
		{config.LoggingConfig{Level: "loud", Format: ""}, zapcore.InfoLevel, "console"},
	}
	for _, tc := range cases {
		cfg := buildConfig(tc.in)
		if cfg.Level.Level() != tc.level || cfg.Encoding != tc.encoding {
			t.Fatalf("%+v: got level %v encoding %q", tc.in, cfg.Level.Level(), cfg.Encoding)
		}
	}
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.Core().Enabled(zapcore.WarnLevel) || !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("level not applied")
	}
}
