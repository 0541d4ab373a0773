// Package capture provides screen capture infrastructure.
package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Capturer grabs pixels from the screen.
type Capturer interface {
	// Capture returns the pixels within rect in absolute screen coordinates.
	Capture(ctx context.Context, rect image.Rectangle) (image.Image, error)

	// VirtualBounds returns the union of all display bounds.
	VirtualBounds() image.Rectangle
}

// ScreenCapturer implements Capturer using the OS screenshot primitive.
type ScreenCapturer struct{}

// NewScreenCapturer creates a capturer for the local displays.
func NewScreenCapturer() *ScreenCapturer {
	return &ScreenCapturer{}
}

// Capture returns the pixels within rect.
func (s *ScreenCapturer) Capture(ctx context.Context, rect image.Rectangle) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rect = rect.Canon()
	if rect.Empty() {
		return nil, fmt.Errorf("capture rect %v is empty", rect)
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("screen capture of %v failed: %w", rect, err)
	}
	return img, nil
}

// VirtualBounds returns the union of all display bounds.
func (s *ScreenCapturer) VirtualBounds() image.Rectangle {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}
	}

	bounds := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		bounds = bounds.Union(screenshot.GetDisplayBounds(i))
	}
	return bounds
}

// Ensure ScreenCapturer implements Capturer
var _ Capturer = (*ScreenCapturer)(nil)
