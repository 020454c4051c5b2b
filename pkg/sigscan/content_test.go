package sigscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSet(t *testing.T) *Set {
	t.Helper()
	set, err := NewSet([]Definition{
		{ID: "php-eval-base64", Severity: "critical", Description: "eval of a base64 payload",
			Pattern: `eval\s*\(\s*base64_decode\s*\(`},
		{ID: "injected-iframe", Severity: "high", Description: "injected iframe",
			Pattern: `<iframe[^>]+src=["']https?://`},
		{ID: "long-base64-blob", Severity: "medium", Description: "long base64 blob",
			Pattern: `[A-Za-z0-9+/]{400,}`},
	})
	require.NoError(t, err)
	return set
}

func TestScanContent_ReportsSignatureAndLine(t *testing.T) {
	set := testSet(t)
	text := "<?php\n// harmless\neval(base64_decode('aGk='));\n"

	matches := set.ScanContent(text, "wp_posts:42")
	require.Len(t, matches, 1)
	m := matches[0]
	require.Equal(t, "php-eval-base64", m.SignatureID)
	require.Equal(t, "critical", m.Severity)
	require.Equal(t, "wp_posts:42", m.Source)
	require.Equal(t, 3, m.Line)
	require.Contains(t, m.MatchedText, "eval(base64_decode(")
	require.Contains(t, m.Preview, "eval(base64_decode")
}

func TestScanContent_OneTextCanTripSeveralSignatures(t *testing.T) {
	set := testSet(t)
	text := `eval(base64_decode('x')); <iframe width=1 src="http://bad.example/x">`

	matches := set.ScanContent(text, "s")
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.SignatureID
	}
	require.ElementsMatch(t, []string{"php-eval-base64", "injected-iframe"}, ids)
}

func TestScanContent_CapsMatchesPerSignature(t *testing.T) {
	set := testSet(t)
	text := strings.Repeat("eval(base64_decode('x'));\n", 20)

	matches := set.ScanContent(text, "s")
	require.Len(t, matches, matchesPerSig)
}

func TestScanContent_TruncatesLongMatchedText(t *testing.T) {
	set := testSet(t)
	blob := strings.Repeat("QUJD", 150) // 600 base64 chars

	matches := set.ScanContent(blob, "s")
	require.Len(t, matches, 1)
	require.Equal(t, "long-base64-blob", matches[0].SignatureID)
	require.Len(t, matches[0].MatchedText, matchedTextLimit+len("..."))
}

func TestScanContent_PreviewCollapsesControlCharacters(t *testing.T) {
	set := testSet(t)
	text := "line1\n\tline2\reval(base64_decode('x'));\nline4"

	matches := set.ScanContent(text, "s")
	require.Len(t, matches, 1)
	require.NotContains(t, matches[0].Preview, "\n")
	require.NotContains(t, matches[0].Preview, "\t")
	require.NotContains(t, matches[0].Preview, "\r")
}

func TestScanContent_NoMatchesOnCleanContent(t *testing.T) {
	set := testSet(t)
	require.Empty(t, set.ScanContent("<?php echo get_header();", "s"))
	require.Empty(t, set.ScanContent("", "s"))
}

func TestLegitimateBase64Image(t *testing.T) {
	long := strings.Repeat("iVBORw0KGgo", 60)
	require.True(t, legitimateBase64Image("data:image/png;base64,"+long))
	require.True(t, legitimateBase64Image("  data:image/svg+xml;base64,"+long+"  "))
	require.False(t, legitimateBase64Image(long), "a bare blob is not an image data URI")
	require.False(t, legitimateBase64Image("data:text/html;base64,"+long))
	require.False(t, legitimateBase64Image("x data:image/png;base64,"+long),
		"the data URI must be the entire content")
}

func TestLoadSet_EmbeddedDefaults(t *testing.T) {
	set, err := LoadSet("")
	require.NoError(t, err)
	require.Positive(t, set.Len())

	// The embedded set must catch the canonical obfuscated-eval backdoor.
	matches := set.ScanContent("eval(base64_decode($_POST['payload']));", "s")
	require.NotEmpty(t, matches)
}

func TestLoadSet_MissingFileFails(t *testing.T) {
	_, err := LoadSet("/nonexistent/signatures.yaml")
	require.Error(t, err)
}

func TestNewSet_RejectsInvalidDefinitions(t *testing.T) {
	_, err := NewSet([]Definition{{ID: "no-pattern"}})
	require.Error(t, err)

	_, err = NewSet([]Definition{{ID: "bad-regex", Pattern: "("}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad-regex")
}
