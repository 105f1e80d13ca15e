package domain

// Chunk is one overlapping slice of a document's text. It only lives in the
// vector store, keyed by DocumentID.
type Chunk struct {
	Text       string
	DocumentID string
	Ordinal    int
}

// EmbeddedChunk pairs a chunk with its vector for upsert.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// ScoredPassage is a single nearest-neighbor hit. Higher scores are more similar.
type ScoredPassage struct {
	Text  string
	Score float64
}

// NoRelevantSections is returned by retrieval when a query matches nothing.
const NoRelevantSections = "No relevant sections found in the document."

// NewChunks numbers texts in order for a document.
func NewChunks(documentID string, texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Text: t, DocumentID: documentID, Ordinal: i}
	}
	return chunks
}
