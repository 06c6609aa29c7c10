package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// SeatInfoKind discriminates the two shapes seat parsing can produce.
type SeatInfoKind string

const (
	// SeatInfoStructured means section/row/seat were recognised.
	SeatInfoStructured SeatInfoKind = "structured"
	// SeatInfoRaw means the text did not match and is carried verbatim.
	SeatInfoRaw SeatInfoKind = "raw"
)

// SeatInfo is the tagged result of parsing free-form seat text. For
// SeatInfoStructured the Section/Row/Seat fields are set; for SeatInfoRaw only
// Raw carries meaning.
type SeatInfo struct {
	Kind    SeatInfoKind
	Section string
	Row     string
	Seat    string
	Raw     string
}

var (
	// "Section 104, Row B, Seat 12" and abbreviated variants.
	seatLabelledPattern = regexp.MustCompile(`(?i)\b(?:sec(?:tion)?)\s*\.?\s*([A-Z0-9]+)\b.*?\b(?:row)\s*\.?\s*([A-Z0-9]+)\b.*?\b(?:seat)s?\s*\.?\s*([A-Z0-9]+(?:\s*[-–]\s*[A-Z0-9]+)?)`)
	// Compact "104-B-12" style.
	seatCompactPattern = regexp.MustCompile(`^\s*([A-Z0-9]{1,6})\s*[-/]\s*([A-Z0-9]{1,4})\s*[-/]\s*([0-9]{1,5}(?:\s*[-–]\s*[0-9]{1,5})?)\s*$`)
	// Row/seat only, e.g. "Row B Seat 12".
	seatRowOnlyPattern = regexp.MustCompile(`(?i)\b(?:row)\s*\.?\s*([A-Z0-9]+)\b.*?\b(?:seat)s?\s*\.?\s*([A-Z0-9]+(?:\s*[-–]\s*[A-Z0-9]+)?)`)
)

// ParseSeatText maps free-form seat text to a structured triple when one of
// the common notations is recognised, and falls back to the raw text
// otherwise. Fullwidth characters are folded so pasted Japanese-ticket text
// parses the same as ASCII input.
func ParseSeatText(raw string) SeatInfo {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SeatInfo{Kind: SeatInfoRaw, Raw: ""}
	}

	folded := strings.TrimSpace(width.Fold.String(trimmed))

	if m := seatLabelledPattern.FindStringSubmatch(folded); m != nil {
		return SeatInfo{
			Kind:    SeatInfoStructured,
			Section: normalizeSeatToken(m[1]),
			Row:     normalizeSeatToken(m[2]),
			Seat:    normalizeSeatToken(m[3]),
			Raw:     trimmed,
		}
	}

	if m := seatCompactPattern.FindStringSubmatch(strings.ToUpper(folded)); m != nil {
		return SeatInfo{
			Kind:    SeatInfoStructured,
			Section: normalizeSeatToken(m[1]),
			Row:     normalizeSeatToken(m[2]),
			Seat:    normalizeSeatToken(m[3]),
			Raw:     trimmed,
		}
	}

	if m := seatRowOnlyPattern.FindStringSubmatch(folded); m != nil {
		return SeatInfo{
			Kind: SeatInfoStructured,
			Row:  normalizeSeatToken(m[1]),
			Seat: normalizeSeatToken(m[2]),
			Raw:  trimmed,
		}
	}

	return SeatInfo{Kind: SeatInfoRaw, Raw: trimmed}
}

func normalizeSeatToken(token string) string {
	token = strings.ToUpper(strings.TrimSpace(token))
	token = strings.ReplaceAll(token, "–", "-")
	// Collapse whitespace around range dashes: "12 - 13" -> "12-13".
	fields := strings.Fields(token)
	return strings.Join(fields, "")
}
