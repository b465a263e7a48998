package ggrenderer

import (
	"image"
	"image/color"
	"testing"

	"github.com/user/pedvoc/pkg/ports"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderer_CreateCanvas_CopiesFrame(t *testing.T) {
	r := New()
	src := solid(64, 48, color.RGBA{G: 255, A: 255})

	canvas := r.CreateCanvas(src)
	canvas.DrawRect(0, 0, 10, 10, color.RGBA{R: 255, A: 255})

	img := canvas.ToImage()
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("expected 64x48, got %dx%d", b.Dx(), b.Dy())
	}
	if _, g, _, _ := img.At(30, 30).RGBA(); g == 0 {
		t.Error("expected source pixels on canvas")
	}
	if r, _, _, _ := src.At(5, 5).RGBA(); r != 0 {
		t.Error("drawing modified the source image")
	}
}

func TestRenderer_CreateCanvas_OffsetBounds(t *testing.T) {
	r := New()
	src := solid(40, 40, color.RGBA{B: 255, A: 255}).SubImage(image.Rect(10, 10, 30, 30))

	img := r.CreateCanvas(src).ToImage()
	if b := img.Bounds(); b.Min != (image.Point{}) || b.Dx() != 20 {
		t.Errorf("expected canvas at origin with width 20, got %v", b)
	}
	if _, _, b, _ := img.At(0, 0).RGBA(); b == 0 {
		t.Error("expected sub-image pixels at the canvas origin")
	}
}

func TestRenderer_EncodeDecodeJPEG(t *testing.T) {
	r := New()
	img := solid(50, 50, color.RGBA{R: 255, A: 255})

	data, err := r.EncodeImage(img, ports.FormatJPEG, 80)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty data")
	}

	decoded, err := r.DecodeImage(data, ports.FormatJPEG)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 50 || b.Dy() != 50 {
		t.Errorf("expected 50x50, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodeDecodePNG(t *testing.T) {
	r := New()

	data, err := r.EncodeImage(image.NewRGBA(image.Rect(0, 0, 30, 30)), ports.FormatPNG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	// FormatRaw falls back to sniffing.
	decoded, err := r.DecodeImage(data, ports.FormatRaw)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 30 || b.Dy() != 30 {
		t.Errorf("expected 30x30, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodeUnsupported(t *testing.T) {
	r := New()
	if _, err := r.EncodeImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), ports.FormatRaw, 0); err == nil {
		t.Error("expected error for raw format")
	}
}

func TestRenderer_ResizeImage(t *testing.T) {
	r := New()

	resized := r.ResizeImage(image.NewRGBA(image.Rect(0, 0, 100, 100)), 50, 25)
	if b := resized.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("expected 50x25, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCanvas_DrawRectStroke(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(solid(100, 100, color.White))

	canvas.DrawRectStroke(10, 10, 30, 30, color.Black, 2)
	img := canvas.ToImage()

	if r1, _, _, _ := img.At(10, 20).RGBA(); r1 == 0xffff {
		t.Error("expected dark pixel on border")
	}
	if r1, _, _, _ := img.At(25, 25).RGBA(); r1 != 0xffff {
		t.Error("expected untouched pixel inside the outline")
	}
}

func TestCanvas_Text(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(solid(200, 50, color.Black))

	small := ports.TextStyle{FontSize: 10, Color: color.White}
	large := ports.TextStyle{FontSize: 30, Color: color.White}

	ws, _ := canvas.MeasureText("12/345", small)
	wl, hl := canvas.MeasureText("12/345", large)
	if ws <= 0 || wl <= ws {
		t.Errorf("expected width to grow with font size, got %.1f and %.1f", ws, wl)
	}
	if hl <= 0 {
		t.Errorf("expected positive height, got %.1f", hl)
	}

	canvas.DrawText("12/345", 10, 25, large)
	img := canvas.ToImage()

	lit := false
	for x := 10; x < 10+int(wl) && !lit; x++ {
		for y := 10; y < 40; y++ {
			if r1, _, _, _ := img.At(x, y).RGBA(); r1 > 0x8000 {
				lit = true
				break
			}
		}
	}
	if !lit {
		t.Error("expected text pixels on canvas")
	}
}

func TestCanvas_MissingFontFallsBack(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(solid(50, 20, color.Black))

	w, _ := canvas.MeasureText("abc", ports.TextStyle{FontSize: 12, FontPath: "/no/such/font.ttf"})
	if w <= 0 {
		t.Errorf("expected built-in font width, got %.1f", w)
	}
}
