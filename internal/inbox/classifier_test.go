package inbox

import (
	"testing"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
)

func TestClassify(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		name string
		body string
		want appointment.Intent
	}{
		// Rule 1: exact single tokens.
		{"single accept token", "accept", appointment.IntentAccept},
		{"single accept token with period", "Accepted.", appointment.IntentAccept},
		{"single yes", "yes", appointment.IntentAccept},
		{"single reject token", "reject", appointment.IntentReject},
		{"single no", "No", appointment.IntentReject},
		{"single decline", "declined", appointment.IntentReject},

		// Rule 2: first-person phrases.
		{"i accept phrase", "I accept the appointment, see you then.", appointment.IntentAccept},
		{"i confirm phrase", "Good day, I confirm.", appointment.IntentAccept},
		{"i reject phrase", "I reject this", appointment.IntentReject},
		{"cannot accept phrase", "Unfortunately I cannot accept this request.", appointment.IntentReject},
		{"not available phrase", "I am not available at that time.", appointment.IntentReject},

		// Rule 3: date ranges and reschedule vocabulary.
		{
			"date range outranks bare yes",
			"yes, but could we do June 2, 2025 3:00 PM - 4:00 PM?",
			appointment.IntentReschedule,
		},
		{
			"full date range",
			"Can we meet on June 5, 2025 1:00 PM - 2:00 PM instead?",
			appointment.IntentReschedule,
		},
		{
			"loose token with reschedule word",
			"Could we reschedule to 06/05/2025? Morning works best.",
			appointment.IntentReschedule,
		},
		{
			"loose time with suggestion word",
			"I suggest 3:00 PM if that is fine with the student.",
			appointment.IntentReschedule,
		},

		// Rules 4 and 5: vocabulary counts.
		{"dominant accept words", "Okay sure, confirmed, yes.", appointment.IntentAccept},
		{"dominant reject words", "Denied. I am busy and unavailable that day.", appointment.IntentReject},
		{"lone reschedule word", "Maybe postpone it?", appointment.IntentReschedule},

		// Rule 6: nothing.
		{"empty body", "", appointment.IntentNone},
		{"no signal", "Thank you for the message.", appointment.IntentNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(vocab, tt.body); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestClassifyDecision(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		name string
		body string
		want appointment.Intent
	}{
		{"plain yes", "yes", appointment.IntentAccept},
		{"plain no", "no", appointment.IntentReject},
		{"accept sentence", "Sure, the new time is okay with me", appointment.IntentAccept},
		{"reject sentence", "I decline the suggested slot", appointment.IntentReject},
		// Rejection must win when both vocabularies match.
		{"mixed reply rejects", "yes yes yes but actually no", appointment.IntentReject},
		{"no signal", "thanks for letting me know", appointment.IntentNone},
		{"empty", "", appointment.IntentNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDecision(vocab, tt.body); got != tt.want {
				t.Errorf("ClassifyDecision(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
