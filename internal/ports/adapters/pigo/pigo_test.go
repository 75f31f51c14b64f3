package pigo

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/types"
)

func TestLargestFace(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 100, Col: 100, Scale: 40, Q: 9},
		{Row: 300, Col: 500, Scale: 120, Q: 2}, // below confidence
		{Row: 200, Col: 300, Scale: 80, Q: 6},
	}
	got := largestFace(dets, DefaultMinConfidence)
	if got == nil {
		t.Fatalf("expected a face")
	}
	if got.X != 260 || got.Y != 160 || got.Width != 80 || got.Height != 80 {
		t.Fatalf("unexpected box: %+v", *got)
	}
}

func TestLargestFace_NoneAboveThreshold(t *testing.T) {
	dets := []pigo.Detection{{Row: 10, Col: 10, Scale: 30, Q: 4.9}}
	if got := largestFace(dets, DefaultMinConfidence); got != nil {
		t.Fatalf("expected nil, got %+v", *got)
	}
	if got := largestFace(nil, DefaultMinConfidence); got != nil {
		t.Fatalf("expected nil for no detections")
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		q    float32
		want float64
	}{
		{0, 0},
		{5, 0.5},
		{10, 1},
		{42, 1},
		{-3, 0},
	}
	for _, tt := range tests {
		if got := confidence(tt.q); got != tt.want {
			t.Fatalf("confidence(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestScaleBox(t *testing.T) {
	bounds := image.Rect(0, 0, 1280, 720)
	got := scaleBox(boxOf(100, 50, 40, 40), 2, bounds)
	if got == nil || got.X != 200 || got.Y != 100 || got.Width != 80 || got.Height != 80 {
		t.Fatalf("unexpected scaled box: %+v", got)
	}

	clipped := scaleBox(boxOf(-10, 700, 40, 40), 1, bounds)
	if clipped == nil {
		t.Fatalf("expected clipped box")
	}
	if clipped.X != 0 || clipped.Width != 30 || clipped.Y+clipped.Height != 720 {
		t.Fatalf("box not clipped to frame: %+v", *clipped)
	}

	if scaleBox(boxOf(2000, 0, 10, 10), 1, bounds) != nil {
		t.Fatalf("box outside frame must be dropped")
	}
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	copy(img.Pix, []uint8{255, 255, 255, 255, 255, 0, 0, 255})
	g := grayscale(img)
	if len(g) != 2 {
		t.Fatalf("unexpected length %d", len(g))
	}
	if g[0] != 255 {
		t.Fatalf("white should stay 255, got %d", g[0])
	}
	if g[1] != 76 {
		t.Fatalf("red luma expected 76, got %d", g[1])
	}
}

func TestGrayscale_SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[img.PixOffset(2, 2)] = 255
	img.Pix[img.PixOffset(2, 2)+1] = 255
	img.Pix[img.PixOffset(2, 2)+2] = 255
	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)
	g := grayscale(sub)
	if len(g) != 4 || g[0] != 255 || g[1] != 0 {
		t.Fatalf("unexpected sub-image luma: %v", g)
	}
}

func TestNew_SetupErrors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), Options{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing cascade")
	}
	bad := filepath.Join(t.TempDir(), "facefinder")
	if err := os.WriteFile(bad, []byte("not a cascade"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(bad, Options{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for corrupt cascade")
	}
}

func boxOf(x, y, w, h int) types.FaceBox {
	return types.FaceBox{X: x, Y: y, Width: w, Height: h}
}

// testdata/facefinder is the frontal face cascade shipped with pigo.
func newTestDetector(t *testing.T, opts Options) *Detector {
	t.Helper()
	d, err := New(filepath.Join("testdata", "facefinder"), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("load cascade: %v", err)
	}
	return d
}

func checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/cell+y/cell)%2 == 0 {
				v = 255
			}
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
		}
	}
	return img
}

func TestDetectLargestFace_Cascade(t *testing.T) {
	d := newTestDetector(t, Options{})
	tests := []struct {
		name  string
		frame *image.RGBA
		blank bool
	}{
		{"blank", image.NewRGBA(image.Rect(0, 0, 640, 360)), true},
		{"blank wider than detect width", image.NewRGBA(image.Rect(0, 0, 3414, 1920)), true},
		{"smaller than min window", image.NewRGBA(image.Rect(0, 0, 12, 12)), true},
		{"textured", checkerboard(640, 360, 16), false},
		{"textured downscaled", checkerboard(1920, 1080, 24), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.DetectLargestFace(tt.frame)
			if tt.blank {
				if got != nil {
					t.Fatalf("expected no face on a blank frame, got %+v", *got)
				}
				return
			}
			if got == nil {
				return
			}
			b := tt.frame.Bounds()
			box := image.Rect(got.X, got.Y, got.X+got.Width, got.Y+got.Height)
			if box.Empty() || !box.In(b) {
				t.Fatalf("box %v outside frame %v", box, b)
			}
		})
	}
}

func TestDetectLargestFace_NarrowDetectWidth(t *testing.T) {
	d := newTestDetector(t, Options{DetectWidth: 160, MinConfidence: 0.01})
	frame := checkerboard(1280, 720, 8)
	got := d.DetectLargestFace(frame)
	if got == nil {
		return
	}
	box := image.Rect(got.X, got.Y, got.X+got.Width, got.Y+got.Height)
	if !box.In(frame.Bounds()) {
		t.Fatalf("box %v not mapped back into frame %v", box, frame.Bounds())
	}
}
