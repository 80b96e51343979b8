package model

// EsChunk is the per-chunk document stored in the Elasticsearch embedding
// index. ChunkID is "<document_id>_<ordinal>" and doubles as the ES
// document id, so re-indexing a document overwrites rather than duplicates.
type EsChunk struct {
	ChunkID      string    `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Ordinal      int       `json:"ordinal"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// RetrievedChunk is one similarity-search hit returned to callers, with the
// score normalized to [0,1].
type RetrievedChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Ordinal      int     `json:"ordinal"`
	TextContent  string  `json:"text_content"`
	Score        float64 `json:"score"`
}

// SourceFile describes one indexable object in the source-file store.
type SourceFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}
