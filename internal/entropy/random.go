// Package entropy supplies world seeds from random.org, falling back to
// crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the random.org JSON-RPC endpoint.
const DefaultEndpoint = "https://api.random.org/json-rpc/4/invoke"

// Client fetches seeds from random.org.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a random.org client. Returns nil if apiKey is empty;
// a nil Client still hands out crypto/rand seeds.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// WithEndpoint points the client at a different JSON-RPC URL.
func (c *Client) WithEndpoint(url string) *Client {
	c.endpoint = url
	return c
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Seed returns a 64-bit seed built from four 16-bit words drawn by
// random.org. Any failure falls back to CryptoSeed.
func (c *Client) Seed(ctx context.Context) uint64 {
	if !c.Enabled() {
		return CryptoSeed()
	}
	seed, err := c.fetch(ctx)
	if err != nil {
		slog.Warn("random.org seed failed, using crypto/rand", "error", err)
		return CryptoSeed()
	}
	slog.Debug("random.org seed drawn", "seed", seed)
	return seed
}

func (c *Client) fetch(ctx context.Context) (uint64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      4,
			"min":    0,
			"max":    0xffff,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []uint16 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("api error: %s", result.Error.Message)
	}

	words := result.Result.Random.Data
	if len(words) != 4 {
		return 0, fmt.Errorf("want 4 words, got %d", len(words))
	}
	var seed uint64
	for _, w := range words {
		seed = seed<<16 | uint64(w)
	}
	return seed, nil
}

// CryptoSeed returns a seed from crypto/rand (no API needed).
func CryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("entropy: crypto/rand: %v", err))
	}
	return binary.LittleEndian.Uint64(buf[:])
}
