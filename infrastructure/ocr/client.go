// Package ocr provides OCR recognition infrastructure on top of Tesseract.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// ErrUnavailable indicates the OCR backend is not installed or not
// reachable. This is an infrastructure failure: retrying cannot help, so
// the engine surfaces it immediately regardless of any fail policy.
var ErrUnavailable = errors.New("ocr backend unavailable")

// Word is a single recognized token with its screen-relative bounding box.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Client provides text recognition services.
type Client interface {
	// Recognize returns the words detected in img. Box coordinates are
	// relative to img's bounds.
	Recognize(ctx context.Context, img image.Image) ([]Word, error)

	// IsAvailable returns true if the OCR backend can be used.
	IsAvailable() bool

	// Close releases resources.
	Close() error
}

// ClientConfig contains configuration for the Tesseract client.
type ClientConfig struct {
	// Languages are the Tesseract language codes, e.g. ["eng", "rus"].
	Languages []string

	// PageSegMode is the Tesseract page segmentation mode.
	PageSegMode gosseract.PageSegMode
}

// DefaultClientConfig returns default OCR client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Languages:   []string{"eng"},
		PageSegMode: gosseract.PSM_SPARSE_TEXT,
	}
}

// TesseractClient implements Client using an embedded Tesseract instance.
// The underlying gosseract client is not safe for concurrent use, so all
// recognition calls are serialized.
type TesseractClient struct {
	mu        sync.Mutex
	client    *gosseract.Client
	available bool
}

// NewTesseractClient creates a Tesseract-backed OCR client. Availability
// is probed once at construction; an installation without language data
// yields a client that reports unavailable rather than an error.
func NewTesseractClient(config *ClientConfig) *TesseractClient {
	if config == nil {
		config = DefaultClientConfig()
	}

	c := &TesseractClient{}

	langs, err := gosseract.GetAvailableLanguages()
	if err != nil || len(langs) == 0 {
		return c
	}

	client := gosseract.NewClient()
	if len(config.Languages) > 0 {
		if err := client.SetLanguage(config.Languages...); err != nil {
			client.Close()
			return c
		}
	}
	if err := client.SetPageSegMode(config.PageSegMode); err != nil {
		client.Close()
		return c
	}

	c.client = client
	c.available = true
	return c
}

// Recognize returns the words detected in img.
func (c *TesseractClient) Recognize(ctx context.Context, img image.Image) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.IsAvailable() {
		return nil, ErrUnavailable
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for ocr: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to load image into ocr backend: %w", err)
	}

	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr recognition failed: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			Box:        b.Box,
			Confidence: b.Confidence,
		})
	}
	return words, nil
}

// IsAvailable returns true if the OCR backend can be used.
func (c *TesseractClient) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Close releases the Tesseract instance.
func (c *TesseractClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.available = false
	return err
}

// Ensure TesseractClient implements Client
var _ Client = (*TesseractClient)(nil)

// NoOpClient is a no-operation OCR client for testing or when OCR is disabled.
type NoOpClient struct{}

// NewNoOpClient creates a no-operation OCR client.
func NewNoOpClient() *NoOpClient {
	return &NoOpClient{}
}

func (c *NoOpClient) Recognize(ctx context.Context, img image.Image) ([]Word, error) {
	return nil, ErrUnavailable
}

func (c *NoOpClient) IsAvailable() bool {
	return false
}

func (c *NoOpClient) Close() error { return nil }

var _ Client = (*NoOpClient)(nil)
