package domain

import (
	"strings"
	"testing"
)

func TestResolveFontStackKnownFamily(t *testing.T) {
	stack := ResolveFontStack("Bebas Neue Bold", FontRoleHeadline)
	if !strings.Contains(stack, "Bebas Neue") {
		t.Fatalf("expected Bebas Neue stack, got %q", stack)
	}
}

func TestResolveFontStackEmptyUsesRoleFallback(t *testing.T) {
	headline := ResolveFontStack("", FontRoleHeadline)
	body := ResolveFontStack("  ", FontRoleBody)
	if headline == body {
		t.Fatalf("headline and body fallbacks should differ: %q", headline)
	}
	if !strings.Contains(headline, "serif") {
		t.Fatalf("headline fallback should be a serif stack: %q", headline)
	}
	if !strings.Contains(body, "sans-serif") {
		t.Fatalf("body fallback should be sans-serif: %q", body)
	}
}

func TestResolveFontStackUnknownClassified(t *testing.T) {
	cases := []struct {
		hint string
		want string
	}{
		{"Midnight Script", "cursive"},
		{"Stadium Mono", "monospace"},
		{"Imperial Serif", "serif"},
		{"Neon Display", "sans-serif"},
	}
	for _, tc := range cases {
		stack := ResolveFontStack(tc.hint, FontRoleBody)
		if !strings.HasSuffix(stack, tc.want) {
			t.Fatalf("hint %q resolved to %q, want suffix %q", tc.hint, stack, tc.want)
		}
		if !strings.Contains(stack, tc.hint) {
			t.Fatalf("hint %q should lead its stack: %q", tc.hint, stack)
		}
	}
}
