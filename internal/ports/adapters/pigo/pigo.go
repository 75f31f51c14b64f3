package pigo

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/types"
)

const (
	DefaultDetectWidth   = 640
	DefaultMinConfidence = 0.5

	minSize      = 20
	shiftFactor  = 0.1
	scaleFactor  = 1.1
	iouThreshold = 0.2
)

type Options struct {
	// DetectWidth downscales wider frames before detection. 0 keeps the default.
	DetectWidth   int
	MinConfidence float64
}

// Detector finds faces with a pigo cascade. It keeps no per-frame state, so
// one Detector may serve several clips concurrently.
type Detector struct {
	classifier    *pigo.Pigo
	detectWidth   int
	minConfidence float64
	log           zerolog.Logger
}

// New loads the cascade at cascadePath. A missing or corrupt cascade is a
// setup error.
func New(cascadePath string, opts Options, log zerolog.Logger) (*Detector, error) {
	b, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	c, err := unpack(b)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade %s: %w", cascadePath, err)
	}
	if opts.DetectWidth <= 0 {
		opts.DetectWidth = DefaultDetectWidth
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	d := &Detector{
		classifier:    c,
		detectWidth:   opts.DetectWidth,
		minConfidence: opts.MinConfidence,
		log:           logging.WithComponent(log, "detector"),
	}
	d.log.Debug().Str("cascade", cascadePath).Int("detect_width", d.detectWidth).Msg("face detector ready")
	return d, nil
}

// unpack guards against truncated cascades, which the decoder indexes
// without bounds checks.
func unpack(b []byte) (c *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("malformed cascade: %v", r)
		}
	}()
	return pigo.NewPigo().Unpack(b)
}

func (d *Detector) DetectLargestFace(frame *image.RGBA) *types.FaceBox {
	if frame == nil {
		return nil
	}
	b := frame.Bounds()
	if b.Dx() < minSize || b.Dy() < minSize {
		return nil
	}
	src := frame
	ratio := 1.0
	if b.Dx() > d.detectWidth {
		ratio = float64(b.Dx()) / float64(d.detectWidth)
		h := int(float64(b.Dy()) / ratio)
		dst := image.NewRGBA(image.Rect(0, 0, d.detectWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)
		src = dst
	}
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     min(cols, rows),
		ShiftFactor: shiftFactor,
		ScaleFactor: scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: grayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, iouThreshold)

	best := largestFace(dets, d.minConfidence)
	if best == nil {
		return nil
	}
	return scaleBox(*best, ratio, b)
}

// confidence normalizes the cascade score into [0, 1].
func confidence(q float32) float64 {
	c := float64(q) / 10
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

// largestFace returns the box of the largest detection whose confidence
// reaches minConf.
func largestFace(dets []pigo.Detection, minConf float64) *types.FaceBox {
	var best *types.FaceBox
	for _, det := range dets {
		if confidence(det.Q) < minConf || det.Scale <= 0 {
			continue
		}
		box := types.FaceBox{
			X:      det.Col - det.Scale/2,
			Y:      det.Row - det.Scale/2,
			Width:  det.Scale,
			Height: det.Scale,
		}
		if best == nil || box.Area() > best.Area() {
			b := box
			best = &b
		}
	}
	return best
}

// scaleBox maps a box found on the downscaled image back onto frame bounds.
func scaleBox(box types.FaceBox, ratio float64, bounds image.Rectangle) *types.FaceBox {
	out := types.FaceBox{
		X:      int(float64(box.X) * ratio),
		Y:      int(float64(box.Y) * ratio),
		Width:  int(float64(box.Width) * ratio),
		Height: int(float64(box.Height) * ratio),
	}
	if out.X < 0 {
		out.Width += out.X
		out.X = 0
	}
	if out.Y < 0 {
		out.Height += out.Y
		out.Y = 0
	}
	if over := out.X + out.Width - bounds.Dx(); over > 0 {
		out.Width -= over
	}
	if over := out.Y + out.Height - bounds.Dy(); over > 0 {
		out.Height -= over
	}
	if out.Width <= 0 || out.Height <= 0 {
		return nil
	}
	return &out
}

// grayscale converts to luma with the BT.601 weights pigo's own helpers use.
func grayscale(img *image.RGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := 0; x < w; x++ {
			r, g, bl := uint32(row[x*4]), uint32(row[x*4+1]), uint32(row[x*4+2])
			gray[y*w+x] = uint8((r*299 + g*587 + bl*114) / 1000)
		}
	}
	return gray
}
