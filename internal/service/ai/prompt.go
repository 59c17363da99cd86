package ai

import (
	"strings"

	"github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
)

// systemPrompt is the fixed assistant instruction: Traditional Chinese,
// structured answers sized for reading inside a LINE chat.
const systemPrompt = `你是一個專業的AI助手，擅長提供簡短且有用的回答。請用繁體中文回應，並遵循以下原則：
記住對話脈絡，提供連貫的服務
提供重點條列式且結構化的回答
會主動詢問澄清問題以提供更精確的幫助
適時提供額外的相關知識和資源
如果不確定答案，會誠實說明並提供可能的方向
回答長度適合在LINE聊天中閱讀，但內容要有深度。`

// RenderHistory renders turns as alternating 用戶/AI lines, one per turn.
// Empty history renders as an empty string.
func RenderHistory(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			lines = append(lines, "用戶: "+turn.Text)
		case conversation.RoleAssistant:
			lines = append(lines, "AI: "+turn.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// ComposePrompt frames the rendered history between the system instruction
// and the assistant cue.
func ComposePrompt(history string) string {
	return systemPrompt + "\n\n對話歷史:\n" + history + "\n\nAI:"
}
