package redaction

import (
	"fmt"
	"image"
	"strings"
)

// Kind enumerates the redaction strategies
type Kind int

const (
	KindMosaic Kind = iota
	KindOverlay
)

// String returns the wire name of the strategy
func (k Kind) String() string {
	switch k {
	case KindMosaic:
		return "mosaic"
	case KindOverlay:
		return "overlay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a strategy name ("mosaic" or "overlay")
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mosaic", "":
		return KindMosaic, nil
	case "overlay", "cover":
		return KindOverlay, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidParameter, s)
	}
}

// Strategy selects how detected regions are redacted. Each kind carries its
// own parameters: BlockSize for mosaic, Cover for overlay. BlockSize is also
// used when an overlay request has to fall back to mosaic.
type Strategy struct {
	Kind      Kind
	BlockSize int
	Cover     image.Image
}

// DefaultBlockSize is the mosaic block size used when none is configured
const DefaultBlockSize = 10

// Mosaic returns a pixelation strategy with the given block size
func Mosaic(blockSize int) Strategy {
	return Strategy{Kind: KindMosaic, BlockSize: blockSize}
}

// Overlay returns a cover-image strategy. blockSize is kept for the mosaic
// fallback used when cover turns out to be unusable.
func Overlay(cover image.Image, blockSize int) Strategy {
	return Strategy{Kind: KindOverlay, BlockSize: blockSize, Cover: cover}
}

// usableCover reports whether an image can serve as an overlay cover
func usableCover(cover image.Image) bool {
	return cover != nil && !cover.Bounds().Empty()
}

// resolve returns the strategy that will actually be applied. An overlay
// without a usable cover is downgraded to mosaic and a warning is returned.
func resolve(s Strategy) (Strategy, string, error) {
	switch s.Kind {
	case KindMosaic:
		return s, "", nil
	case KindOverlay:
		if usableCover(s.Cover) {
			return s, "", nil
		}
		return Mosaic(s.BlockSize), "overlay requested without a usable cover image, using mosaic", nil
	default:
		return Strategy{}, "", fmt.Errorf("%w: unknown strategy %s", ErrInvalidParameter, s.Kind)
	}
}
