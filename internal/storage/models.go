package storage

import (
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/docchat/internal/chunker"
)

// CollectionPrefix marks collections owned by docchat. Each ingestion gets a fresh one.
const CollectionPrefix = "docchat_"

// VectorName is the named vector holding chunk embeddings.
const VectorName = "content"

// newCollectionName returns a unique collection name for one ingestion.
func newCollectionName() string {
	return CollectionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func chunkPayload(c chunker.Chunk) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		"chunk_index": c.Index,
		"doc_id":      c.DocID,
		"source":      c.Source,
		"content":     c.Content,
	})
}

func chunkFromPayload(payload map[string]*qdrant.Value) chunker.Chunk {
	return chunker.Chunk{
		Index:   int(payload["chunk_index"].GetIntegerValue()),
		DocID:   payload["doc_id"].GetStringValue(),
		Source:  payload["source"].GetStringValue(),
		Content: payload["content"].GetStringValue(),
	}
}
