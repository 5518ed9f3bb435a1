package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
)

func TestGuessSeverity(t *testing.T) {
	allowed := schema.Names(models.DefaultSeverities())
	tests := []struct {
		summary  string
		expected string
	}{
		{"Data loss when saving drafts", "fatal"},
		{"Security hole in login", "fatal"},
		{"Crash on startup", "critical"},
		{"UI hangs after resize", "critical"},
		{"Search regression since 1.2", "serious"},
		{"Export fails for large files", "serious"},
		{"Nice to have: dark mode", "wishlist"},
		{"Typo in help text", "minor"},
		{"Add keyboard shortcuts", ""},

		// Most severe match wins
		{"Crash causes data loss", "fatal"},
	}
	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			assert.Equal(t, tt.expected, guessSeverity(tt.summary, allowed))
		})
	}
}

func TestGuessSeverity_RespectsAllowed(t *testing.T) {
	assert.Equal(t, "", guessSeverity("Crash on startup", []string{"low", "high"}))
	assert.Equal(t, "serious", guessSeverity("Crash, broken build", []string{"serious"}))
}
