/**
 * @description
 * This package provides a client for the face-embedding model server. Given an image it
 * returns the fixed-length float vector the server's model produces; the model itself is
 * opaque to this service.
 */
package embeddingclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrFaceNotDetected is returned when the model finds no face in the image.
	ErrFaceNotDetected = errors.New("no face detected in image")
	// ErrInvalidImage is returned when the image cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
	// ErrUnexpectedDimension is returned when the vector length differs from the configured dimension.
	ErrUnexpectedDimension = errors.New("unexpected embedding dimension")
)

// Client calls the embedding service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	dimension  int
	httpClient *http.Client
}

// NewClient creates a new embedding service client. A dimension of 0 disables the length check.
func NewClient(baseURL string, apiKey string, dimension int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Image string `json:"image"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// GenerateEmbedding sends the raw image bytes and returns the model's embedding.
func (c *Client) GenerateEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("embedding service base url is empty")
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	body, err := json.Marshal(embeddingRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to embedding service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrFaceNotDetected, readDetail(resp.Body))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrInvalidImage, readDetail(resp.Body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("embedding service returned error status %d", resp.StatusCode)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrUnexpectedDimension)
	}
	if c.dimension > 0 && len(out.Embedding) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedDimension, len(out.Embedding), c.dimension)
	}
	return out.Embedding, nil
}

func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
