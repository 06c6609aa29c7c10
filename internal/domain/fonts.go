package domain

import "strings"

// FontRole distinguishes the two slots a generated font hint can fill.
type FontRole string

const (
	FontRoleHeadline FontRole = "headline"
	FontRoleBody     FontRole = "body"
)

const (
	fallbackHeadlineStack = "'Playfair Display', Georgia, serif"
	fallbackBodyStack     = "'Inter', 'Helvetica Neue', sans-serif"
)

// Known families the model tends to suggest, mapped to safe CSS stacks. The
// hint is matched loosely so "Bebas Neue Bold" still resolves.
var knownFontStacks = map[string]string{
	"playfair":    "'Playfair Display', Georgia, serif",
	"bodoni":      "'Bodoni Moda', 'Didot', serif",
	"bebas":       "'Bebas Neue', 'Oswald', sans-serif",
	"oswald":      "'Oswald', 'Arial Narrow', sans-serif",
	"montserrat":  "'Montserrat', 'Helvetica Neue', sans-serif",
	"inter":       "'Inter', 'Helvetica Neue', sans-serif",
	"lora":        "'Lora', Georgia, serif",
	"cinzel":      "'Cinzel', 'Trajan Pro', serif",
	"great vibes": "'Great Vibes', 'Brush Script MT', cursive",
	"pacifico":    "'Pacifico', 'Brush Script MT', cursive",
	"courier":     "'Courier Prime', 'Courier New', monospace",
	"space mono":  "'Space Mono', 'Courier New', monospace",
}

// ResolveFontStack turns a generated font-family hint into a renderable CSS
// font stack. Unknown hints are classified by keyword (script/serif/mono) and
// quoted verbatim at the front of a generic stack; empty hints get the role's
// fallback.
func ResolveFontStack(hint string, role FontRole) string {
	trimmed := strings.TrimSpace(hint)
	if trimmed == "" {
		if role == FontRoleHeadline {
			return fallbackHeadlineStack
		}
		return fallbackBodyStack
	}

	lower := strings.ToLower(trimmed)
	for key, stack := range knownFontStacks {
		if strings.Contains(lower, key) {
			return stack
		}
	}

	family := "'" + strings.Trim(trimmed, "'\"") + "'"
	switch {
	case strings.Contains(lower, "script") || strings.Contains(lower, "cursive") || strings.Contains(lower, "hand"):
		return family + ", 'Brush Script MT', cursive"
	case strings.Contains(lower, "mono") || strings.Contains(lower, "type"):
		return family + ", 'Courier New', monospace"
	case strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		return family + ", Georgia, serif"
	default:
		return family + ", 'Helvetica Neue', sans-serif"
	}
}
