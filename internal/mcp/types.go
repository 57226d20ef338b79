// Package mcp exposes a document chat session as Model Context Protocol tools.
package mcp

import "time"

// IngestDocumentsInput defines the input parameters for the ingest_documents tool.
type IngestDocumentsInput struct {
	// Paths are local files, directories or glob patterns.
	Paths []string `json:"paths,omitempty" jsonschema:"Files, directories (not recursive) or glob patterns under the server documents root"`
	// Repo is a GitHub location such as owner/repo/docs@main.
	Repo string `json:"repo,omitempty" jsonschema:"GitHub location to index, formatted owner/repo[/path][@ref]"`
}

// IngestDocumentsOutput summarises the ingestion.
type IngestDocumentsOutput struct {
	// Documents are the names of the indexed documents.
	Documents []string `json:"documents"`
	Pages     int      `json:"pages"`
	Chunks    int      `json:"chunks"`

	// DurationMS is how long extraction, chunking and embedding took.
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	Question string `json:"question" jsonschema:"The question to answer from the indexed documents"`
}

// AskQuestionOutput is the generated answer and the passages it used.
type AskQuestionOutput struct {
	Answer  string    `json:"answer"`
	Sources []Passage `json:"sources"`

	// Turn is the sequence number of this exchange in the conversation.
	Turn int `json:"turn"`
}

// Passage is one retrieved chunk.
type Passage struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// GetHistoryInput takes no parameters.
type GetHistoryInput struct{}

// GetHistoryOutput lists the remembered turns, oldest first.
type GetHistoryOutput struct {
	Turns []Turn `json:"turns"`
	Count int    `json:"count"`
}

// Turn is one question and answer pair.
type Turn struct {
	Seq      int       `json:"seq"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// ResetSessionInput takes no parameters.
type ResetSessionInput struct{}

// ResetSessionOutput reports the state after a reset.
type ResetSessionOutput struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the session.
type StatusOutput struct {
	State      string   `json:"state"`
	Documents  []string `json:"documents"`
	Chunks     int      `json:"chunks"`
	Turns      int      `json:"turns"`
	Window     int      `json:"window"`
	TopK       int      `json:"top_k"`
	Embedder   string   `json:"embedder"`
	LastIngest string   `json:"last_ingest,omitempty"`
}
