package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simhost.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[replay]
script = "runs/walk.yaml"
release_lag = 2

[logging]
format = "json"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Replay.Script != "runs/walk.yaml" || cfg.Replay.ReleaseLag != 2 {
		t.Fatalf("replay section not applied: %+v", cfg.Replay)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
	if cfg.Host.Name != "Majestik-World" || cfg.Database.Enabled {
		t.Fatalf("defaults lost: %+v %+v", cfg.Host, cfg.Database)
	}
	if cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("conn lifetime: %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Host.StartTime == 0 {
		t.Fatal("start time not set")
	}
}

func TestLoadRejectsInconsistentConfig(t *testing.T) {
	cases := map[string]string{
		"negative lag":          "[replay]\nrelease_lag = -1\n",
		"save without database": "[replay]\nsave_name = \"slot1\"\n",
		"resume without save":   "[replay]\nresume = true\n[database]\nenabled = true\n",
		"journal without db":    "[database]\njournal = true\n",
		"bad toml":              "[replay\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}
