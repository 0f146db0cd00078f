package models

// DocumentUnit is one page (PDF), slide (PPTX) or whole file (DOCX) of
// extracted text.
type DocumentUnit struct {
	Content string
	Source  string
	Page    int
}

// Chunk represents a split span of a DocumentUnit with inherited metadata
type Chunk struct {
	Content string
	Source  string
	Page    int
	ChunkID int
	Tokens  int
}

// ChunkEmbedding is the record stored in a vector store.
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// ScoredChunk is a stored record returned by a similarity query.
type ScoredChunk struct {
	ChunkEmbedding
	Similarity float32
}

type SourceSnippet struct {
	Source  string
	Page    int
	Content string
}

type PromptResponse struct {
	Query   string
	Answer  string
	Sources []SourceSnippet
}

// Snippet converts a retrieved chunk to its display form.
func (s ScoredChunk) Snippet() SourceSnippet {
	return SourceSnippet{Source: s.Source, Page: s.Page, Content: s.Content}
}
