package inbox

import (
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"May 3, 2025", "2025-05-03"},
		{"June 15, 2025", "2025-06-15"},
		{"06/05/2025", "2025-06-05"},
		{"06-05-2025", "2025-06-05"},
		{"2025-06-05", "2025-06-05"},
		{"2025/06/05", "2025-06-05"},
		{"5 Jun 2025", "2025-06-05"},
		{"5 June 2025", "2025-06-05"},
		// Unparseable input comes back unchanged.
		{"not a date", "not a date"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeDate(tt.in); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2:00 pm", "02:00 PM"},
		{"2:00 PM", "02:00 PM"},
		{"11:30 AM", "11:30 AM"},
		{"3 PM", "03:00 PM"},
		{"14:30", "02:30 PM"},
		{"9:05 am", "09:05 AM"},
		// Unparseable input comes back unchanged.
		{"half past two", "half past two"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTime(tt.in); got != tt.want {
				t.Errorf("NormalizeTime(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantDate  string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "combined range",
			body:      "How about June 5, 2025 1:00 PM - 2:00 PM instead?",
			wantOK:    true,
			wantDate:  "June 5, 2025",
			wantStart: "1:00 PM",
			wantEnd:   "2:00 PM",
		},
		{
			name:      "separate tokens",
			body:      "I would prefer 06/05/2025, say 1:00 PM until 2:00 PM.",
			wantOK:    true,
			wantDate:  "06/05/2025",
			wantStart: "1:00 PM",
			wantEnd:   "2:00 PM",
		},
		{
			name:      "single time token",
			body:      "Maybe May 3, 2025 around 3 PM?",
			wantOK:    true,
			wantDate:  "May 3, 2025",
			wantStart: "3 PM",
			wantEnd:   "",
		},
		{
			name:   "time without date",
			body:   "3:00 PM works for me",
			wantOK: false,
		},
		{
			name:   "no proposal at all",
			body:   "I accept",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := Extract(tt.body)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.body, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ext.DateText != tt.wantDate {
				t.Errorf("DateText = %q, want %q", ext.DateText, tt.wantDate)
			}
			if ext.StartText != tt.wantStart {
				t.Errorf("StartText = %q, want %q", ext.StartText, tt.wantStart)
			}
			if ext.EndText != tt.wantEnd {
				t.Errorf("EndText = %q, want %q", ext.EndText, tt.wantEnd)
			}
		})
	}
}

func TestParseSlot(t *testing.T) {
	ext := Extraction{DateText: "June 5, 2025", StartText: "1:00 PM", EndText: "2:00 PM"}
	start, end, err := ParseSlot(ext)
	if err != nil {
		t.Fatalf("ParseSlot() error = %v", err)
	}

	wantStart := time.Date(2025, 6, 5, 13, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 6, 5, 14, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}
}

func TestParseSlotErrors(t *testing.T) {
	tests := []struct {
		name string
		ext  Extraction
	}{
		{"missing end time", Extraction{DateText: "June 5, 2025", StartText: "1:00 PM"}},
		{"unparseable date", Extraction{DateText: "someday", StartText: "1:00 PM", EndText: "2:00 PM"}},
		{"end before start", Extraction{DateText: "June 5, 2025", StartText: "2:00 PM", EndText: "1:00 PM"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseSlot(tt.ext); err == nil {
				t.Errorf("ParseSlot(%+v) expected error, got nil", tt.ext)
			}
		})
	}
}
