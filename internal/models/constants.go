package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MetaSource  = "source"
	MetaPage    = "page"
	MetaChunkID = "chunk_id"
	MetaTokens  = "tokens"

	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)

var (
	// AnswerPromptTemplate is rendered with langchaingo prompts (Go template syntax).
	AnswerPromptTemplate = `Answer the question as based only on the following context:
{{.context}}
{{- if .history}}

Conversation so far:
{{.history}}
{{- end}}

Question: {{.question}}
`

	Greeting = "Hello! Feel free to ask anything about the documents you uploaded."
)

// Turn is one entry of a chat transcript.
type Turn struct {
	Role    string
	Content string
}
