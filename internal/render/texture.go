package render

import (
	"image"
	"image/png"
	"io"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

// Texel layout of PackRGBA.
const (
	TexelBytes = 4

	obstacleTexel = 1
	openTexel     = 0
	alphaTexel    = 255 // unused channel, kept opaque so exports stay viewable
)

// PackRGBA packs the field into row-major RGBA bytes ready for a texture upload.
// Row r, column c of the texture holds cell (x=r, y=c):
//
//	R = direction X component
//	G = direction Y component
//	B = 1 if the cell is an obstacle, 0 otherwise
//	A = 255 (unused)
func PackRGBA(f *flowfield.Field, m *grid.Map) ([]byte, error) {
	if err := checkSizes(f, m); err != nil {
		return nil, err
	}

	n := f.Size()
	buf := make([]byte, n*n*TexelBytes)
	idx := 0
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			d := f.Direction(x, y)
			buf[idx] = d.X
			buf[idx+1] = d.Y
			if m.IsObstacle(x, y) {
				buf[idx+2] = obstacleTexel
			} else {
				buf[idx+2] = openTexel
			}
			buf[idx+3] = alphaTexel
			idx += TexelBytes
		}
	}
	return buf, nil
}

// Texture wraps PackRGBA in a non-premultiplied image so channel values
// survive encoding unchanged.
func Texture(f *flowfield.Field, m *grid.Map) (*image.NRGBA, error) {
	pix, err := PackRGBA(f, m)
	if err != nil {
		return nil, err
	}
	n := f.Size()
	return &image.NRGBA{
		Pix:    pix,
		Stride: n * TexelBytes,
		Rect:   image.Rect(0, 0, n, n),
	}, nil
}

// WriteTexturePNG encodes Texture as PNG.
func WriteTexturePNG(w io.Writer, f *flowfield.Field, m *grid.Map) error {
	img, err := Texture(f, m)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
