package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers /embeddings with one 2-dim vector per input,
// listed in reverse order to exercise index-based placement.
func fakeEmbeddingsServer(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embeddings", r.URL.Path)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAI_EmbedBatchesInOrder(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, http.StatusOK)

	client, err := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	emb := NewOpenAI(client, "", 2)

	vecs, err := emb.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 1}, vecs[2])
	assert.Equal(t, 2, *calls, "3 texts with batch size 2 need 2 requests")
	assert.Equal(t, "openai/"+DefaultModel, emb.Name())
}

func TestOpenAI_PermanentErrorNotRetried(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, http.StatusBadRequest)

	client, err := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = NewOpenAI(client, "", 0).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.False(t, IsRateLimitError(err))
	assert.Equal(t, 1, *calls)
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}
