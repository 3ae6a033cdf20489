// Package normalize implements the deterministic text-normalization pipeline
// applied to every report before a corpus is materialized.
//
// The steps are ordered and the order is load-bearing: typographic quotes
// must become straight quotes and whitespace must be collapsed before
// outer-quote stripping can recognize a fully quoted report, and the
// replacement-character accounting must run after every character-level
// rewrite.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/oneirolab/somnia/internal/domain"
)

// Result carries the batch outcome of normalizing a report column.
type Result struct {
	Rows []string
	// ReplacementRows is the number of rows still containing U+FFFD after
	// normalization. The character is preserved: removing it would silently
	// hide unrecoverable data loss.
	ReplacementRows int
}

// Column normalizes every row of a report column. Any row that normalizes to
// the empty string fails the whole batch: an empty report is never a valid
// record and dropping rows would corrupt published corpus statistics.
func Column(rows []string) (Result, error) {
	out := make([]string, len(rows))
	empty := 0
	replacement := 0
	for i, row := range rows {
		s := String(row)
		if s == "" {
			empty++
		} else if strings.ContainsRune(s, utf8.RuneError) {
			replacement++
		}
		out[i] = s
	}
	if empty > 0 {
		return Result{}, &domain.EmptyReportError{Count: empty}
	}
	return Result{Rows: out, ReplacementRows: replacement}, nil
}

// String maps raw report text to its canonical form. Pure and idempotent.
func String(s string) string {
	s = repairEncoding(s)
	s = canonQuotes(s)
	s = canonDashesAndSpaces(s)
	s = strings.ReplaceAll(s, "…", "...")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = stripOuterQuotes(s)
	return s
}

var (
	// Go's \s is ASCII-only; the class adds the Unicode space separators so
	// em/ideographic/thin spaces collapse like ASCII whitespace.
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\x{85}\x{2028}\x{2029}]+`)
	ansiEscape    = regexp.MustCompile("\x1b(?:\\[[0-9;?]*[ -/]*[@-~]|[@-Z\\\\^_])")
	htmlEntity    = regexp.MustCompile(`&(?:#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[a-zA-Z][a-zA-Z0-9]{1,31});`)
)

// repairEncoding fixes mojibake and related byte-level damage, then applies
// NFC. Covers: invalid UTF-8 recovered as cp1252, UTF-8 read as cp1252
// (iteratively, a pass only sticks when it strictly reduces suspicion),
// stray C1 controls, well-formed HTML entities, line-break styles, terminal
// escapes, and C0 control characters.
func repairEncoding(s string) string {
	s = recoverInvalidUTF8(s)
	for {
		fixed, changed := mojibakePass(s)
		if !changed {
			break
		}
		s = fixed
	}
	s = fixC1Controls(s)
	s = unescapeEntities(s)
	s = normalizeLineBreaks(s)
	s = ansiEscape.ReplaceAllString(s, "")
	s = stripControls(s)
	return norm.NFC.String(s)
}

// recoverInvalidUTF8 reinterprets bytes that are not valid UTF-8 as cp1252,
// the most common legacy encoding in the upstream archives. Valid runes are
// kept as-is.
func recoverInvalidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return decodeSloppy([]byte(s))
}

// decodeSloppy decodes bytes as UTF-8 where possible and as cp1252 byte by
// byte where not.
func decodeSloppy(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(charmap.Windows1252.DecodeByte(data[i]))
		} else {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// mojibakePass tries to undo one layer of "UTF-8 decoded as cp1252". Every
// rune must round-trip back to a single byte; the bytes are re-decoded
// sloppily so text mixing mojibake with genuine cp1252 characters still
// repairs. The result sticks only when it looks strictly less like mojibake,
// which also bounds the caller's loop: each accepted pass lowers the score.
func mojibakePass(s string) (string, bool) {
	before := mojibakeScore(s)
	if before == 0 {
		return s, false
	}
	b := make([]byte, 0, len(s))
	for _, r := range s {
		byt, ok := sloppy1252Byte(r)
		if !ok {
			return s, false
		}
		b = append(b, byt)
	}
	out := decodeSloppy(b)
	if mojibakeScore(out) >= before {
		return s, false
	}
	return out, true
}

// mojibakeScore counts adjacent rune pairs that, read as cp1252 bytes, form a
// UTF-8 lead byte followed by a continuation byte.
func mojibakeScore(s string) int {
	runes := []rune(s)
	score := 0
	for i := 0; i+1 < len(runes); i++ {
		lead, ok := sloppy1252Byte(runes[i])
		if !ok || lead < 0xC2 || lead > 0xF4 {
			continue
		}
		cont, ok := sloppy1252Byte(runes[i+1])
		if ok && cont >= 0x80 && cont <= 0xBF {
			score++
		}
	}
	return score
}

// sloppy1252Byte is the inverse of a "sloppy" cp1252 decode: codepoints the
// codec does not define fall back to their Latin-1 byte, matching how broken
// decoders behave in the wild.
func sloppy1252Byte(r rune) (byte, bool) {
	if b, ok := charmap.Windows1252.EncodeRune(r); ok {
		return b, true
	}
	if r < 0x100 {
		return byte(r), true
	}
	return 0, false
}

// fixC1Controls maps stray C1 control codepoints (a Latin-1 read of cp1252
// bytes) to the characters the bytes actually meant.
func fixC1Controls(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x80 && r <= 0x9F {
			return charmap.Windows1252.DecodeByte(byte(r))
		}
		return r
	}, s)
}

// unescapeEntities unescapes well-formed HTML entities only; a bare "&" or a
// semicolonless form is ambiguous and left alone. Runs to a fixpoint so
// nested escaping ("&amp;amp;amp;") converges in one call; every effective
// pass strictly shortens the string, so the loop terminates.
func unescapeEntities(s string) string {
	for {
		out := htmlEntity.ReplaceAllStringFunc(s, html.UnescapeString)
		if out == s {
			return s
		}
		s = out
	}
}

func normalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, " ", "\n") // line separator
	s = strings.ReplaceAll(s, " ", "\n") // paragraph separator
	return s
}

// stripControls removes C0 control characters except TAB and LF, which the
// whitespace collapse handles.
func stripControls(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' {
			return -1
		}
		if r == 0x7F {
			return -1
		}
		return r
	}, s)
}

var quoteMap = map[rune]rune{
	'‘': '\'', // left single quotation mark
	'’': '\'', // right single quotation mark / apostrophe
	'‛': '\'', // single high-reversed-9 quotation mark
	'“': '"',  // left double quotation mark
	'”': '"',  // right double quotation mark
	'‟': '"',  // double high-reversed-9 quotation mark
}

func canonQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		if q, ok := quoteMap[r]; ok {
			return q
		}
		return r
	}, s)
}

var dashSpaceMap = map[rune]rune{
	'–': '—', // en dash -> em dash
	'‐': '-',      // hyphen
	'‑': '-',      // non-breaking hyphen
	'‒': '-',      // figure dash
	'−': '-',      // minus sign
	' ': ' ',      // non-breaking space
	'​': ' ',      // zero-width space
}

func canonDashesAndSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := dashSpaceMap[r]; ok {
			return d
		}
		return r
	}, s)
}

// stripOuterQuotes removes a matching straight-quote pair wrapping the entire
// string, re-trims, and repeats until stable. Each iteration removes exactly
// one pair; the loop keeps the function idempotent for inputs wrapped more
// than once. Internal quote pairs are never touched and a lone quote has no
// inner content to unwrap.
func stripOuterQuotes(s string) string {
	for {
		if len(s) < 3 {
			return s
		}
		first, last := s[0], s[len(s)-1]
		if first != last || (first != '"' && first != '\'') {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
}
