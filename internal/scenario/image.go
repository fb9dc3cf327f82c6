package scenario

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maskThreshold is the luma below which a mask pixel is an obstacle.
const maskThreshold = 128

// Masks are read whole, so both the file and the decoded image are capped.
const (
	maxMaskBytes  = 32 << 20
	maxMaskPixels = 4096 * 4096
)

func loadMask(path string, size int) ([][]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image mask: %w", err)
	}
	defer f.Close()
	return decodeMask(f, size)
}

// decodeMask scales the image to size×size with nearest-neighbour sampling
// and returns the obstacle layout indexed [x][y]. Image rows map to x.
// Transparent pixels count as open.
func decodeMask(r io.Reader, size int) ([][]bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMaskBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image mask: %w", err)
	}
	if len(data) > maxMaskBytes {
		return nil, fmt.Errorf("%w: image: larger than %d bytes", ErrInvalid, maxMaskBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image mask: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image: empty %s", ErrInvalid, format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxMaskPixels {
		return nil, fmt.Errorf("%w: image: %dx%d %s exceeds %d pixels", ErrInvalid, cfg.Width, cfg.Height, format, maxMaskPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image mask: %w", err)
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image: empty %s", ErrInvalid, format)
	}

	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Rect, image.White, image.Point{}, draw.Src)
	draw.NearestNeighbor.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	mask := make([][]bool, size)
	for x := range mask {
		mask[x] = make([]bool, size)
		for y := range mask[x] {
			mask[x][y] = dst.GrayAt(y, x).Y < maskThreshold
		}
	}
	return mask, nil
}
