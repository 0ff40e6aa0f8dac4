package inbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripQuotedHistory removes quoted reply history so the classifier only
// sees the words the sender actually typed. The text is cut at the first
// "On ..." attribution line, or, failing that, at the first line starting
// with a ">" quote marker. If neither appears the body is returned
// verbatim. Mail clients vary, so this stays a standalone pure function.
func StripQuotedHistory(body string) string {
	lines := strings.Split(body, "\n")

	cut := len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "On ") {
			cut = i
			break
		}
	}
	if cut == len(lines) {
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), ">") {
				cut = i
				break
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines[:cut], "\n"))
}

var (
	reScript     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reTags       = regexp.MustCompile(`<[^>]+>`)
	reWhitespace = regexp.MustCompile(`[ \t]+`)
)

// HTMLToText reduces an HTML-only reply body to plain text for
// classification. goquery handles well-formed markup; a regex strip is the
// fallback for the rest.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		return strings.TrimSpace(doc.Text())
	}

	html = reScript.ReplaceAllString(html, "")
	html = reStyle.ReplaceAllString(html, "")
	html = reTags.ReplaceAllString(html, " ")
	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", "\"")
	html = reWhitespace.ReplaceAllString(html, " ")
	return strings.TrimSpace(html)
}

// referenceMarker is the literal body marker carrying the reference code in
// every notification thread (wire contract with human repliers).
const referenceMarker = "Reference Number: "

// ExtractReference pulls the 6-character reference code that follows the
// literal "Reference Number: " marker. Case is preserved. Returns "" when
// the marker is missing or truncated.
func ExtractReference(body string) string {
	idx := strings.Index(body, referenceMarker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimLeft(body[idx+len(referenceMarker):], " ")
	if len(rest) < 6 {
		return ""
	}
	code := strings.TrimSpace(rest[:6])
	if len(code) != 6 {
		return ""
	}
	return code
}

// subjectReferenceMarker precedes the reference code in decision and
// reschedule subject lines.
const subjectReferenceMarker = "Reference #"

// ExtractSubjectReference pulls the 6-character reference code from a
// subject line of the form "... - Reference #<code>". Returns "" when the
// marker is missing or the code is truncated.
func ExtractSubjectReference(subject string) string {
	idx := strings.Index(subject, subjectReferenceMarker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(subject[idx+len(subjectReferenceMarker):])
	if len(rest) < 6 {
		return ""
	}
	code := rest[:6]
	if strings.ContainsAny(code, " \t") {
		return ""
	}
	return code
}
