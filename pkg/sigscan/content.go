package sigscan

import (
	"regexp"
	"strings"
)

const (
	matchedTextLimit   = 100
	previewRadius      = 60
	matchesPerSig      = 5
	defaultTablePrefix = "wp_"
)

// ThreatMatch is one signature hit. Transient, produced and returned, never
// persisted here.
type ThreatMatch struct {
	SignatureID string `json:"signature_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	MatchedText string `json:"matched_text"`
	Source      string `json:"source"`
	Line        int    `json:"line,omitempty"`
	Preview     string `json:"preview"`
}

// ProgressFunc receives bounded-interval scan progress. done and total count
// scan units (queries or files), not rows or bytes.
type ProgressFunc func(done, total int, message string)

// base64ImagePattern recognizes inline image data URIs, the most common
// legitimate shape that would otherwise trip the long-base64 signature.
var base64ImagePattern = regexp.MustCompile(
	`^data:image/(png|jpe?g|gif|webp|svg\+xml|x-icon);base64,[A-Za-z0-9+/=\s]+$`)

// legitimateBase64Image reports whether content is, in its entirety, an
// inline base64 image.
func legitimateBase64Image(content string) bool {
	return base64ImagePattern.MatchString(strings.TrimSpace(content))
}

// ScanContent runs every signature against text and returns all matches.
// It never short-circuits on the first hit; one text can trip several
// signatures.
func (s *Set) ScanContent(text, source string) []ThreatMatch {
	return s.scanFrom(text, source, 1)
}

// scanFrom is ScanContent with an explicit starting line number, used by the
// file scanner to keep line numbers correct across chunk boundaries.
func (s *Set) scanFrom(text, source string, baseLine int) []ThreatMatch {
	var matches []ThreatMatch
	for i := range s.sigs {
		sig := &s.sigs[i]
		for _, loc := range sig.re.FindAllStringIndex(text, matchesPerSig) {
			matches = append(matches, ThreatMatch{
				SignatureID: sig.ID,
				Severity:    sig.Severity,
				Description: sig.Description,
				MatchedText: truncate(text[loc[0]:loc[1]], matchedTextLimit),
				Source:      source,
				Line:        baseLine + strings.Count(text[:loc[0]], "\n"),
				Preview:     preview(text, loc[0], loc[1]),
			})
		}
	}
	return matches
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// preview returns a window of surrounding content with control characters
// collapsed, safe to show in a report.
func preview(text string, start, end int) string {
	from := start - previewRadius
	if from < 0 {
		from = 0
	}
	to := end + previewRadius
	if to > len(text) {
		to = len(text)
	}
	p := text[from:to]
	p = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		return r
	}, p)
	return truncate(strings.TrimSpace(p), matchedTextLimit+2*previewRadius)
}
