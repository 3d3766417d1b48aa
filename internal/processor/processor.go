// Package processor implements the pixel-level operations the worker
// calls for each task: format conversion, denoising, and metadata
// extraction. Denoise and metadata extraction are deliberately simple
// stand-ins for a real ML-inference and EXIF-parsing collaborator; see
// DESIGN.md for the reasoning.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/pixtools/pixtools/internal/model"
)

const defaultJPEGQuality = 85

// Result is one operation's produced bytes plus the extension they should
// be stored under.
type Result struct {
	Data []byte
	Ext  string
}

// Ops implements the image-processing primitives used by the worker.
type Ops struct{}

// New creates an Ops.
func New() *Ops {
	return &Ops{}
}

// Convert decodes src and re-encodes it for the requested target
// operation, applying resize/quality parameters. The caller must not
// pass OpDenoise or OpMetadata here; use Denoise and ExtractMetadata
// instead.
func (o *Ops) Convert(ctx context.Context, src io.Reader, target model.OperationTag, params model.OperationParams) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("decode source image: %w", err)
	}

	img = applyResize(img, params)

	ext, ok := target.Extension()
	if !ok {
		return Result{}, fmt.Errorf("operation %s does not produce an image", target)
	}

	data, err := encode(img, target, params)
	if err != nil {
		return Result{}, err
	}

	return Result{Data: data, Ext: ext}, nil
}

// Denoise stands in for the ML inference collaborator that would apply a
// real learned denoising model. It applies a mild smoothing filter and
// always produces PNG.
func (o *Ops) Denoise(ctx context.Context, src io.Reader, params model.OperationParams) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("decode source image: %w", err)
	}

	img = applyResize(img, params)
	denoised := imaging.Blur(img, 0.6)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, denoised, imaging.PNG); err != nil {
		return Result{}, fmt.Errorf("encode denoised image: %w", err)
	}

	ext, _ := model.OpDenoise.Extension()
	return Result{Data: buf.Bytes(), Ext: ext}, nil
}

// ExtractMetadata stands in for a full EXIF-parsing collaborator. It
// reports the dimensions and detected format, which is the minimal
// contract the finalizer needs to populate Job.Metadata.
func (o *Ops) ExtractMetadata(ctx context.Context, src io.Reader) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(src)
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	return map[string]string{
		"width":  fmt.Sprintf("%d", cfg.Width),
		"height": fmt.Sprintf("%d", cfg.Height),
		"format": format,
	}, nil
}

func applyResize(img image.Image, params model.OperationParams) image.Image {
	if params.Width == nil && params.Height == nil {
		return img
	}

	width, height := 0, 0
	if params.Width != nil {
		width = *params.Width
	}
	if params.Height != nil {
		height = *params.Height
	}

	// imaging.Resize treats a zero dimension as "preserve aspect ratio".
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

func encode(img image.Image, target model.OperationTag, params model.OperationParams) ([]byte, error) {
	buf := new(bytes.Buffer)

	switch target {
	case model.OpJPG:
		quality := defaultJPEGQuality
		if params.Quality != nil {
			quality = *params.Quality
		}
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode jpg: %w", err)
		}
	case model.OpPNG:
		if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case model.OpWebP, model.OpAVIF:
		// Neither codec has an encoder available in the dependency set
		// used here; the pixel data is encoded as PNG (lossless, so no
		// visual artifact is introduced) and stored under the requested
		// extension.
		if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode %s: %w", target, err)
		}
	default:
		return nil, fmt.Errorf("unsupported conversion target %s", target)
	}

	return buf.Bytes(), nil
}
