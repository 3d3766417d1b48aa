package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pixtools/pixtools/internal/model"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestConvertJPG(t *testing.T) {
	o := New()
	res, err := o.Convert(context.Background(), bytes.NewReader(testPNG(t, 20, 10)), model.OpJPG, model.OperationParams{})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.Ext != "jpg" {
		t.Errorf("Ext = %q, want jpg", res.Ext)
	}
	if len(res.Data) == 0 {
		t.Error("Data is empty")
	}
}

func TestConvertResizeBothDimensions(t *testing.T) {
	o := New()
	w, h := 8, 8
	res, err := o.Convert(context.Background(), bytes.NewReader(testPNG(t, 40, 40)), model.OpPNG, model.OperationParams{Width: &w, Height: &h})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != w || bounds.Dy() != h {
		t.Errorf("got %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), w, h)
	}
}

func TestConvertResizeAspectPreserving(t *testing.T) {
	o := New()
	w := 10
	res, err := o.Convert(context.Background(), bytes.NewReader(testPNG(t, 40, 20)), model.OpPNG, model.OperationParams{Width: &w})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 10 || bounds.Dy() != 5 {
		t.Errorf("got %dx%d, want 10x5 (aspect preserved)", bounds.Dx(), bounds.Dy())
	}
}

func TestDenoiseAlwaysProducesPNG(t *testing.T) {
	o := New()
	res, err := o.Denoise(context.Background(), bytes.NewReader(testPNG(t, 12, 12)), model.OperationParams{})
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if res.Ext != "png" {
		t.Errorf("Ext = %q, want png", res.Ext)
	}
}

func TestExtractMetadata(t *testing.T) {
	o := New()
	meta, err := o.ExtractMetadata(context.Background(), bytes.NewReader(testPNG(t, 30, 15)))
	if err != nil {
		t.Fatalf("ExtractMetadata() error = %v", err)
	}
	if meta["width"] != "30" || meta["height"] != "15" {
		t.Errorf("meta = %v, want width=30 height=15", meta)
	}
}
