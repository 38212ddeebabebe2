package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

func TestIngestDocumentPostsResult(t *testing.T) {
	t.Parallel()

	var got links.ScrapeResult
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		apiKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewKnowledgeClient(Config{Endpoint: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	err = c.IngestDocument(context.Background(), links.ScrapeResult{
		Title: "Docs",
		URL:   "https://example.com/docs",
	})
	require.NoError(t, err)
	require.Equal(t, "Docs", got.Title)
	require.Equal(t, "secret", apiKey)
}

func TestWriteDocumentRejectsNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vault unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewVaultClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	err = c.WriteDocument(context.Background(), links.ScrapeResult{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 503")
}

func TestClientsRequireEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewKnowledgeClient(Config{})
	require.Error(t, err)
	_, err = NewVaultClient(Config{})
	require.Error(t, err)
}
