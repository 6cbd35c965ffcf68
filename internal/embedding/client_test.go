package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_EmbedOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)

		resp := map[string]any{"data": []map[string]any{
			{"embedding": []float32{1, 0, 0}},
			{"embedding": []float32{0, 1, 0}},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)

	vecs, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
}

func TestHTTPClient_EmbedOllama(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		calls++
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{float32(calls), 0},
		}))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: "ollama", APIURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vecs, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, 2, calls, "ollama embeds one prompt per call")
	require.Equal(t, [][]float32{{1, 0}, {2, 0}}, vecs)
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"x"})
	require.ErrorContains(t, err, "quota exceeded")
}

func TestHTTPClient_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": []any{}}))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"x"})
	require.ErrorContains(t, err, "expected 1 embeddings")
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)

	_, err = NewClient(Config{Model: "m", Provider: "bedrock"})
	require.Error(t, err)
}

func TestProbeDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"embedding": []float32{0.1, 0.2, 0.3, 0.4}},
		}}))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	dims, err := ProbeDimensions(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, 4, dims)
}
