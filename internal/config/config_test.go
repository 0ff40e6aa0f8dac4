package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mail:
  from: desk@example.edu
  smtp:
    host: smtp.example.edu
    port: 587
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Host != "127.0.0.1" || cfg.HTTP.Port != 8000 {
		t.Errorf("HTTP defaults = %s:%d, want 127.0.0.1:8000", cfg.HTTP.Host, cfg.HTTP.Port)
	}
	if cfg.Mail.Provider != "smtp" {
		t.Errorf("provider default = %q, want smtp", cfg.Mail.Provider)
	}
	if cfg.Mail.IMAP.Folder != "INBOX" {
		t.Errorf("IMAP folder default = %q, want INBOX", cfg.Mail.IMAP.Folder)
	}
	if cfg.Poller.Interval() != 90*time.Second {
		t.Errorf("poller interval = %v, want 90s", cfg.Poller.Interval())
	}
	if cfg.Poller.ScanLimit != 10 {
		t.Errorf("scan limit = %d, want 10", cfg.Poller.ScanLimit)
	}
	if cfg.Poller.StaleAfter() != 48*time.Hour {
		t.Errorf("stale after = %v, want 48h", cfg.Poller.StaleAfter())
	}
}

func TestLoadInfersGmailIMAP(t *testing.T) {
	path := writeConfig(t, `
mail:
  from: desk@example.edu
  imap:
    email: desk@gmail.com
    password: app-password
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mail.IMAP.Server != "imap.gmail.com" || cfg.Mail.IMAP.Port != 993 {
		t.Errorf("inferred IMAP = %s:%d, want imap.gmail.com:993", cfg.Mail.IMAP.Server, cfg.Mail.IMAP.Port)
	}
	if err := cfg.ValidateIMAP(); err != nil {
		t.Errorf("ValidateIMAP() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid smtp", func(c *Config) {}, false},
		{"missing from", func(c *Config) { c.Mail.From = "" }, true},
		{"smtp without host", func(c *Config) { c.Mail.SMTP.Host = "" }, true},
		{"resend without key", func(c *Config) { c.Mail.Provider = "resend" }, true},
		{"resend with key", func(c *Config) {
			c.Mail.Provider = "resend"
			c.Mail.Resend.APIKey = "re_123"
		}, false},
		{"unknown provider", func(c *Config) { c.Mail.Provider = "pigeon" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Mail.From = "desk@example.edu"
			cfg.Mail.Provider = "smtp"
			cfg.Mail.SMTP.Host = "smtp.example.edu"
			cfg.Mail.SMTP.Port = 587
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := &Config{}
	cfg.Mail.From = "desk@example.edu"
	cfg.Mail.Provider = "sendgrid"
	cfg.Mail.SendGrid.APIKey = "SG.abc"
	cfg.Poller.Enabled = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("saved config permissions = %04o, want 0600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Mail.Provider != "sendgrid" || loaded.Mail.SendGrid.APIKey != "SG.abc" {
		t.Errorf("round trip lost provider settings: %+v", loaded.Mail)
	}
	if !loaded.Poller.Enabled {
		t.Error("round trip lost poller.enabled")
	}
}
