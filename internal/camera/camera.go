// Package camera abstracts the capture device behind a small interface so
// the sequencer can run against real hardware or a synthetic source.
package camera

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
)

// Device produces frames on demand.
type Device interface {
	// Open prepares the device. Frame must not be called before Open
	// succeeds.
	Open() error
	// Frame grabs the next still.
	Frame() (image.Image, error)
	// Close releases the device.
	Close() error
}

// Synthetic renders procedurally generated frames, used when no real
// capture hardware is attached and throughout the test suite.
type Synthetic struct {
	Width  int
	Height int

	mu     sync.Mutex
	open   bool
	rng    *rand.Rand
	frames int
}

// NewSynthetic returns a synthetic device at the given resolution.
// Dimensions below 1 fall back to 640x480.
func NewSynthetic(width, height int, seed int64) *Synthetic {
	if width < 1 || height < 1 {
		width, height = 640, 480
	}
	return &Synthetic{
		Width:  width,
		Height: height,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *Synthetic) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Frame returns a gradient frame with random scatter so successive frames
// differ.
func (s *Synthetic) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, fmt.Errorf("%w: device not open", model.ErrCaptureDeviceUnavailable)
	}
	s.frames++
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	base := uint8(40 + (s.frames*37)%120)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: base + uint8(x*160/s.Width),
				G: base + uint8(y*160/s.Height),
				B: 200 - uint8((x+y)*120/(s.Width+s.Height)),
				A: 255,
			})
		}
	}
	for i := 0; i < 200; i++ {
		x, y := s.rng.Intn(s.Width), s.rng.Intn(s.Height)
		img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return img, nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}
