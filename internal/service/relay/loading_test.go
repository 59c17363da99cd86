package relay

import (
	"strings"
	"testing"
)

func TestEstimateSeconds(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    int
	}{
		{"short plain", "你好嗎", 5},
		{"medium plain", strings.Repeat("a", 60), 8},
		{"long plain", strings.Repeat("a", 120), 12},
		{"keyword short", "幫我翻譯這句話", 15},
		{"keyword overrides length", strings.Repeat("a", 120) + "請詳細說明", 15},
		{"boundary 50", strings.Repeat("a", 50), 5},
		{"boundary 100", strings.Repeat("a", 100), 8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateSeconds(tc.message); got != tc.want {
				t.Fatalf("EstimateSeconds(%q) = %d, want %d", tc.message, got, tc.want)
			}
		})
	}
}

func TestEstimateSecondsCountsRunes(t *testing.T) {
	// 60 CJK characters are well over 150 bytes but only 60 runes.
	message := strings.Repeat("好", 60)
	if got := EstimateSeconds(message); got != 8 {
		t.Fatalf("EstimateSeconds = %d, want 8", got)
	}
}
