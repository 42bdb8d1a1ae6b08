package vulkan

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/math"
)

// Image reads the buffer back as a width x height RGBA image. Each pixel
// is four float components in [0, 1].
func (b *Buffer) Image(width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("buffer `%s`: invalid image size %dx%d", b.name, width, height)
	}
	// divide rather than multiply so huge sizes cannot wrap around
	pixels := b.count / 4
	if b.count%4 != 0 || pixels%uint64(height) != 0 || pixels/uint64(height) != uint64(width) {
		return nil, errors.Wrapf(core.ErrSizeMismatch, "buffer `%s`: %d elements cannot hold a %dx%d RGBA image", b.name, b.count, width, height)
	}
	values, err := Get[float32](b)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			img.SetNRGBA(x, y, color.NRGBA{
				R: toByte(values[i]),
				G: toByte(values[i+1]),
				B: toByte(values[i+2]),
				A: toByte(values[i+3]),
			})
		}
	}
	return img, nil
}

// SaveImage writes the buffer as an image file. The encoder is chosen from
// the extension: .bmp or .tif/.tiff.
func (b *Buffer) SaveImage(path string, width, height int) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".bmp" && ext != ".tif" && ext != ".tiff" {
		return errors.Newf("unsupported image format `%s`", filepath.Ext(path))
	}
	img, err := b.Image(width, height)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating `%s`", path)
	}
	defer f.Close()

	if ext == ".bmp" {
		err = bmp.Encode(f, img)
	} else {
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return errors.Wrapf(err, "encoding `%s`", path)
	}
	core.LogInfo("saved `%s` to %s", b.name, path)
	return nil
}

func toByte(v float32) uint8 {
	return uint8(math.Clamp(v*255+0.5, 0, 255))
}
