package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Door Opened", "door opened"},
		{"collapses whitespace", "door   opened\t now", "door opened now"},
		{"strips punctuation", "door opened!!", "door opened"},
		{"keeps accented letters", "Sesión añadida", "sesión añadida"},
		{"keeps letters outside spanish", "Über señal çağrı très", "über señal çağrı très"},
		{"keeps digits and underscores", "cam_3 zone-7", "cam_3 zone7"},
		{"trims", "  door opened  ", "door opened"},
		{"empty", "", ""},
		{"only punctuation", "!?.,;:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	inputs := []string{
		"Door  Opened!!",
		"  Multiple   spaces\nand lines ",
		"señal de alarma detectada",
		"plain",
		"",
	}

	for _, s := range inputs {
		once := NormalizeText(s)
		assert.Equal(t, once, NormalizeText(once), "normalizing twice must equal normalizing once for %q", s)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("door opened", "door opened"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 0.001)

	// Near-duplicates normalize to high ratios.
	sim := Similarity(NormalizeText("Door opened"), NormalizeText("door  opened!!"))
	assert.GreaterOrEqual(t, sim, 0.95)
}
