package inbox

import (
	"regexp"
	"strings"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
)

// Vocabulary holds the compiled word lists and phrase patterns the
// classifier matches against. Build one with DefaultVocabulary and share
// it; it is immutable after construction.
type Vocabulary struct {
	acceptTokens map[string]struct{}
	rejectTokens map[string]struct{}

	acceptPhrases     *regexp.Regexp
	rejectPhrases     *regexp.Regexp
	reschedulePhrases *regexp.Regexp

	acceptWords     *regexp.Regexp
	rejectWords     *regexp.Regexp
	rescheduleWords *regexp.Regexp
}

// DefaultVocabulary compiles the stock English vocabulary. Tokens match
// the whole message; phrases are first-person constructions; the word
// lists feed the weighted count fallback.
func DefaultVocabulary() *Vocabulary {
	tokens := func(words ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			m[w] = struct{}{}
		}
		return m
	}
	return &Vocabulary{
		acceptTokens: tokens("accept", "accepted", "approve", "approved", "yes"),
		rejectTokens: tokens("reject", "rejected", "decline", "declined", "no"),

		acceptPhrases:     regexp.MustCompile(`\bi\s+(?:accept|approve|confirm|agree)\b`),
		rejectPhrases:     regexp.MustCompile(`\bi\s+(?:reject|decline|deny)\b|\bcannot\s+accept\b|\bnot\s+available\b`),
		reschedulePhrases: regexp.MustCompile(`\breschedul\w*\b|\banother\s+time\b|\bdifferent\s+time\b|\bsuggest\w*\b|\bavailable\b|\binstead\b`),

		acceptWords:     regexp.MustCompile(`\b(?:accept|accepted|approve|approved|yes|confirm|confirmed|agree|agreed|okay|ok|sure)\b`),
		rejectWords:     regexp.MustCompile(`\b(?:reject|rejected|decline|declined|no|deny|denied|cannot|busy|unavailable)\b`),
		rescheduleWords: regexp.MustCompile(`\b(?:reschedule|rescheduled|rescheduling|another|different|suggest|suggested|available|instead|move|postpone)\b`),
	}
}

// Classify maps a cleaned reply body to an intent. Rules run in strict
// priority order; the first that fires wins:
//
//  1. the whole message, lowercased and trimmed, is a single known accept
//     or reject token
//  2. a first-person phrase matches
//  3. a full date plus time range proposal is present, or a looser date or
//     time token co-occurs with reschedule vocabulary
//  4. one vocabulary's word-boundary hit count strictly exceeds the other
//     two combined
//  5. any vocabulary matched at all, preferring accept over reject over
//     reschedule
//  6. nothing matched
func Classify(v *Vocabulary, body string) appointment.Intent {
	text := strings.ToLower(strings.TrimSpace(body))
	if text == "" {
		return appointment.IntentNone
	}

	// Rule 1: exact single-token message.
	token := strings.Trim(text, " \t\r\n.,!?:;\"'")
	if _, ok := v.acceptTokens[token]; ok {
		return appointment.IntentAccept
	}
	if _, ok := v.rejectTokens[token]; ok {
		return appointment.IntentReject
	}

	// Rule 2: first-person phrases.
	if v.acceptPhrases.MatchString(text) {
		return appointment.IntentAccept
	}
	if v.rejectPhrases.MatchString(text) {
		return appointment.IntentReject
	}

	// Rule 3: a concrete counter-proposal outranks agreement words riding
	// along in the same sentence.
	if reDateRange.MatchString(body) {
		return appointment.IntentReschedule
	}
	if (reDateToken.MatchString(body) || reTimeToken.MatchString(body)) && v.reschedulePhrases.MatchString(text) {
		return appointment.IntentReschedule
	}

	// Rule 4: weighted word counts, one vocabulary strictly dominant.
	accept := len(v.acceptWords.FindAllString(text, -1))
	reject := len(v.rejectWords.FindAllString(text, -1))
	resched := len(v.rescheduleWords.FindAllString(text, -1))
	switch {
	case accept > reject+resched:
		return appointment.IntentAccept
	case reject > accept+resched:
		return appointment.IntentReject
	case resched > accept+reject:
		return appointment.IntentReschedule
	}

	// Rule 5: any signal at all, ties broken accept > reject > reschedule.
	switch {
	case accept > 0:
		return appointment.IntentAccept
	case reject > 0:
		return appointment.IntentReject
	case resched > 0:
		return appointment.IntentReschedule
	}

	return appointment.IntentNone
}

// ClassifyDecision is the strict two-way variant used for student replies
// to a reschedule suggestion, where only yes or no is meaningful.
// Rejection vocabulary is checked first, so a mixed reply never books a
// slot the student turned down.
func ClassifyDecision(v *Vocabulary, body string) appointment.Intent {
	text := strings.ToLower(strings.TrimSpace(body))
	if text == "" {
		return appointment.IntentNone
	}
	if v.rejectPhrases.MatchString(text) || v.rejectWords.MatchString(text) {
		return appointment.IntentReject
	}
	if v.acceptPhrases.MatchString(text) || v.acceptWords.MatchString(text) {
		return appointment.IntentAccept
	}
	return appointment.IntentNone
}
