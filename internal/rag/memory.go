package rag

import (
	"sync"

	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/models"
)

// Memory keeps the most recent turns of a conversation. A limit of zero
// disables it.
type Memory struct {
	mu    sync.Mutex
	limit int
	turns []models.Turn
}

func NewMemory(limit int) *Memory {
	return &Memory{limit: max(limit, 0)}
}

// Add appends turns, evicting the oldest ones beyond the limit.
func (m *Memory) Add(turns ...models.Turn) {
	if m.limit == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	if over := len(m.turns) - m.limit; over > 0 {
		m.turns = append([]models.Turn(nil), m.turns[over:]...)
	}
}

func (m *Memory) Turns() []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Turn(nil), m.turns...)
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// FormatHistory renders turns as "Human: ..." / "AI: ..." lines.
func FormatHistory(turns []models.Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	messages := make([]llms.ChatMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.RoleUser:
			messages = append(messages, llms.HumanChatMessage{Content: t.Content})
		default:
			messages = append(messages, llms.AIChatMessage{Content: t.Content})
		}
	}
	return llms.GetBufferString(messages, "Human", "AI")
}
