// ABOUTME: Avatar image conversion for profile pictures
// ABOUTME: Decodes common formats and writes square PNG thumbnails using x/image/draw

package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Size is the edge length of stored avatars in pixels.
const Size = 64

// MaxSourcePixels bounds decoded uploads.
const MaxSourcePixels = 4096 * 4096

// ErrTooLarge is returned for images exceeding MaxSourcePixels.
var ErrTooLarge = errors.New("image too large")

// Decode reads an image in any registered format (PNG, JPEG, GIF, BMP, WebP).
// Images declaring more than MaxSourcePixels are rejected from their header,
// before any pixel data is allocated.
func Decode(r io.Reader) (image.Image, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Resize scales src to size x size with Catmull-Rom resampling.
func Resize(src image.Image, size int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// Thumbnail decodes r, scales it to Size and writes it to w as PNG.
func Thumbnail(r io.Reader, w io.Writer) error {
	img, err := Decode(r)
	if err != nil {
		return err
	}
	return EncodePNG(w, Resize(img, Size))
}

// ToPNG decodes r and re-encodes it unchanged in size as PNG.
func ToPNG(r io.Reader, w io.Writer) error {
	img, err := Decode(r)
	if err != nil {
		return err
	}
	return EncodePNG(w, img)
}

// EncodePNG writes img with best compression.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
