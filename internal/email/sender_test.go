package email

import (
	"context"
	"strings"
	"testing"

	"github.com/campus-kiosk/apptdesk/internal/config"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"plain address", "juan@example.edu", false},
		{"display name", "Juan Dela Cruz <juan@example.edu>", false},
		{"missing domain", "juan@", true},
		{"empty", "", true},
		{"header injection", "juan@example.edu\r\nBcc: evil@example.com", true},
		{"comma list", "a@example.com,b@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	base := Message{
		To:      "juan@example.edu",
		From:    "desk@example.edu",
		Subject: "Your Appointment has been created",
		Body:    "Good day!",
	}

	if err := validateMessage(base); err != nil {
		t.Errorf("validateMessage() error = %v for valid message", err)
	}

	bad := base
	bad.Subject = "Hello\r\nBcc: evil@example.com"
	if err := validateMessage(bad); err == nil {
		t.Error("validateMessage() accepted subject with CRLF")
	}

	bad = base
	bad.To = "not-an-address"
	if err := validateMessage(bad); err == nil {
		t.Error("validateMessage() accepted invalid recipient")
	}
}

func TestSMTPSendGuards(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{
		Host:     "smtp.example.edu",
		Port:     587,
		Username: "desk",
		Password: "secret",
	}, "desk@example.edu")

	// The configured from address fills in, so validation passes and the
	// send is refused at the credentials-without-TLS guard instead.
	res := s.Send(context.Background(), Message{
		To:      "juan@example.edu",
		Subject: "Your Appointment has been created",
		Body:    "Good day!",
	})
	if res.Success {
		t.Fatal("Send() succeeded, want refusal")
	}
	if res.Error == nil || !strings.Contains(res.Error.Error(), "TLS") {
		t.Errorf("Send() error = %v, want TLS requirement", res.Error)
	}
}

func TestBuildPlainText(t *testing.T) {
	payload := string(buildPlainText(Message{
		To:      "juan@example.edu",
		From:    "desk@example.edu",
		Subject: "Appointment Accepted - Reference #AB12CD",
		Body:    "Good day!",
	}))

	for _, want := range []string{
		"From: desk@example.edu\r\n",
		"To: juan@example.edu\r\n",
		"Subject: Appointment Accepted - Reference #AB12CD\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"\r\n\r\nGood day!",
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q:\n%s", want, payload)
		}
	}
}

func TestNewSenderProviderSelection(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"", "smtp", false},
		{"smtp", "smtp", false},
		{"resend", "resend", false},
		{"sendgrid", "sendgrid", false},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run("provider "+tt.provider, func(t *testing.T) {
			cfg := config.MailConfig{Provider: tt.provider, From: "desk@example.edu"}
			sender, err := NewSender(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSender() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if sender.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", sender.Name(), tt.wantName)
			}
		})
	}
}
