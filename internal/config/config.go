package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Mail     MailConfig     `yaml:"mail"`
	Poller   PollerConfig   `yaml:"poller"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MailConfig covers both directions: outbound notifications via the
// configured provider and inbound reply polling via IMAP.
type MailConfig struct {
	From     string         `yaml:"from"`
	Provider string         `yaml:"provider"` // "smtp", "resend", "sendgrid"
	SMTP     SMTPConfig     `yaml:"smtp,omitempty"`
	Resend   ResendConfig   `yaml:"resend,omitempty"`
	SendGrid SendGridConfig `yaml:"sendgrid,omitempty"`
	IMAP     IMAPConfig     `yaml:"imap"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
}

// IMAPConfig holds settings for the mailbox the reply poller reads.
type IMAPConfig struct {
	Server   string `yaml:"server"` // e.g., "imap.gmail.com"
	Port     int    `yaml:"port"`   // e.g., 993
	Email    string `yaml:"email"`
	Password string `yaml:"password"` // App password (not main password)
	Folder   string `yaml:"folder"`   // Folder to monitor (default: "INBOX")
}

// PollerConfig holds the timing knobs of the reply poller and the
// auto-reject sweeper. Defaults match production behavior; tests shrink them.
type PollerConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalSec    int  `yaml:"interval_sec"`     // full cycle period (default 90)
	ScanLimit      int  `yaml:"scan_limit"`       // unread messages per scan (default 10)
	MessageDelayMs int  `yaml:"message_delay_ms"` // pause between per-message API calls (default 1000)
	RetryAttempts  int  `yaml:"retry_attempts"`   // retries after a failed list/thread call (default 3)
	RetryBaseSec   int  `yaml:"retry_base_sec"`   // backoff base, doubled per attempt (default 2)
	StaleAfterHr   int  `yaml:"stale_after_hr"`   // pending age before auto-reject (default 48)
}

func (p PollerConfig) Interval() time.Duration { return time.Duration(p.IntervalSec) * time.Second }

func (p PollerConfig) MessageDelay() time.Duration {
	return time.Duration(p.MessageDelayMs) * time.Millisecond
}

func (p PollerConfig) RetryBase() time.Duration { return time.Duration(p.RetryBaseSec) * time.Second }

func (p PollerConfig) StaleAfter() time.Duration { return time.Duration(p.StaleAfterHr) * time.Hour }

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".apptdesk", "config.yaml")
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "apptdesk.db"
	}
	return filepath.Join(home, ".apptdesk", "apptdesk.db")
}

func Load(path string) (*Config, error) {
	if err := checkFilePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath()
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = "smtp"
	}
	if c.Mail.IMAP.Folder == "" {
		c.Mail.IMAP.Folder = "INBOX"
	}
	if c.Mail.IMAP.Server == "" && c.Mail.IMAP.Email != "" {
		c.Mail.IMAP.Server = "imap.gmail.com"
		c.Mail.IMAP.Port = 993
	}
	if c.Poller.IntervalSec == 0 {
		c.Poller.IntervalSec = 90
	}
	if c.Poller.ScanLimit == 0 {
		c.Poller.ScanLimit = 10
	}
	if c.Poller.MessageDelayMs == 0 {
		c.Poller.MessageDelayMs = 1000
	}
	if c.Poller.RetryAttempts == 0 {
		c.Poller.RetryAttempts = 3
	}
	if c.Poller.RetryBaseSec == 0 {
		c.Poller.RetryBaseSec = 2
	}
	if c.Poller.StaleAfterHr == 0 {
		c.Poller.StaleAfterHr = 48
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	if c.Mail.From == "" {
		return fmt.Errorf("mail: from address is required")
	}
	switch c.Mail.Provider {
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp: host is required")
		}
		if c.Mail.SMTP.Port == 0 {
			return fmt.Errorf("mail.smtp: port is required")
		}
	case "resend":
		if c.Mail.Resend.APIKey == "" {
			return fmt.Errorf("mail.resend: api_key is required")
		}
	case "sendgrid":
		if c.Mail.SendGrid.APIKey == "" {
			return fmt.Errorf("mail.sendgrid: api_key is required")
		}
	default:
		return fmt.Errorf("mail: unknown provider %q (smtp, resend or sendgrid)", c.Mail.Provider)
	}
	return nil
}

// ValidateIMAP validates mailbox settings (only needed when the poller runs).
func (c *Config) ValidateIMAP() error {
	if c.Mail.IMAP.Email == "" {
		return fmt.Errorf("mail.imap: email address is required")
	}
	if c.Mail.IMAP.Password == "" {
		return fmt.Errorf("mail.imap: password (app password) is required")
	}
	if c.Mail.IMAP.Server == "" {
		return fmt.Errorf("mail.imap: IMAP server is required")
	}
	if c.Mail.IMAP.Port == 0 {
		return fmt.Errorf("mail.imap: IMAP port is required")
	}
	return nil
}
