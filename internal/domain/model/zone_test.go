package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name  string
		value int
		want  Zone
	}{
		{"well below low threshold", 55, ZoneLow},
		{"just below low threshold", 79, ZoneLow},
		{"low threshold is good", 80, ZoneGood},
		{"middle of good band", 100, ZoneGood},
		{"high threshold is good", 130, ZoneGood},
		{"just above high threshold", 131, ZoneHigh},
		{"well above high threshold", 250, ZoneHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.value))
		})
	}
}

func TestZoneLabel(t *testing.T) {
	assert.Equal(t, "Too Low", ZoneLow.Label())
	assert.Equal(t, "Good", ZoneGood.Label())
	assert.Equal(t, "Too High", ZoneHigh.Label())
}
