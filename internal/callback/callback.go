// Package callback holds HTTP clients for the downstream collaborators
// that consume successful scrapes. All of them are best-effort from the
// worker's point of view.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knowvault/linkcycle/internal/links"
)

const defaultTimeout = 10 * time.Second

// Config points a client at one collaborator endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func newClient(cfg Config) client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c client) post(ctx context.Context, result links.ScrapeResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
	return nil
}

// KnowledgeClient implements links.KnowledgeIngestor over HTTP.
type KnowledgeClient struct {
	client
}

// NewKnowledgeClient builds a client for the knowledge store endpoint.
func NewKnowledgeClient(cfg Config) (*KnowledgeClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ingest endpoint is required")
	}
	return &KnowledgeClient{client: newClient(cfg)}, nil
}

// IngestDocument posts the result to the knowledge store.
func (c *KnowledgeClient) IngestDocument(ctx context.Context, result links.ScrapeResult) error {
	return c.post(ctx, result)
}

// VaultClient implements links.VaultWriter over HTTP.
type VaultClient struct {
	client
}

// NewVaultClient builds a client for the markdown vault endpoint.
func NewVaultClient(cfg Config) (*VaultClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("vault endpoint is required")
	}
	return &VaultClient{client: newClient(cfg)}, nil
}

// WriteDocument posts the result to the vault.
func (c *VaultClient) WriteDocument(ctx context.Context, result links.ScrapeResult) error {
	return c.post(ctx, result)
}
