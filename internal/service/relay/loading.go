package relay

import (
	"strings"
	"unicode/utf8"
)

// complexKeywords 需要較長思考時間的題型關鍵字。
var complexKeywords = []string{"分析", "解釋", "詳細", "比較", "計算", "翻譯", "寫作", "創作"}

// EstimateSeconds sizes the typing indicator from the message shape. Later
// tiers override earlier ones; a keyword match wins over length.
func EstimateSeconds(message string) int {
	seconds := 5
	if length := utf8.RuneCountInString(message); length > 100 {
		seconds = 12
	} else if length > 50 {
		seconds = 8
	}

	for _, keyword := range complexKeywords {
		if strings.Contains(message, keyword) {
			return 15
		}
	}
	return seconds
}
