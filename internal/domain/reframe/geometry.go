package reframe

import (
	"fmt"
	"math"
)

// Geometry is the intermediate frame size a source is scaled to before the
// target window is cut out of it.
type Geometry struct {
	Factor       float64
	ScaledWidth  int
	ScaledHeight int
	TargetWidth  int
	TargetHeight int
	CropY        int
}

// MaxCropX is the largest valid horizontal crop offset.
func (g Geometry) MaxCropX() int { return g.ScaledWidth - g.TargetWidth }

// CenterCropX is the static centered offset.
func (g Geometry) CenterCropX() int { return g.MaxCropX() / 2 }

type ResolutionError struct {
	SourceWidth, SourceHeight int
	ScaledWidth, ScaledHeight int
	TargetWidth, TargetHeight int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution too small: %dx%d scaled to %dx%d cannot fit target %dx%d",
		e.SourceWidth, e.SourceHeight, e.ScaledWidth, e.ScaledHeight, e.TargetWidth, e.TargetHeight)
}

// Scale computes the intermediate geometry so that both axes cover the target.
func Scale(srcW, srcH, targetW, targetH int) (Geometry, error) {
	if srcW <= 0 || srcH <= 0 || targetW <= 0 || targetH <= 0 {
		return Geometry{}, &ResolutionError{
			SourceWidth: srcW, SourceHeight: srcH,
			TargetWidth: targetW, TargetHeight: targetH,
		}
	}
	f := math.Max(float64(targetW)/float64(srcW), float64(targetH)/float64(srcH))
	sw := scaledDim(srcW, f)
	sh := scaledDim(srcH, f)
	if sw < targetW || sh < targetH {
		return Geometry{}, &ResolutionError{
			SourceWidth: srcW, SourceHeight: srcH,
			ScaledWidth: sw, ScaledHeight: sh,
			TargetWidth: targetW, TargetHeight: targetH,
		}
	}
	return Geometry{
		Factor:       f,
		ScaledWidth:  sw,
		ScaledHeight: sh,
		TargetWidth:  targetW,
		TargetHeight: targetH,
		CropY:        (sh - targetH) / 2,
	}, nil
}

// scaledDim rounds up, ignoring float noise such as 1920.0000000002.
func scaledDim(n int, f float64) int {
	return int(math.Ceil(float64(n)*f - 1e-6))
}
