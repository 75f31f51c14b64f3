package reframe

import "github.com/forPelevin/cliper/internal/types"

const (
	DefaultMargin        = 0.15
	DefaultSampleRate    = 3
	DefaultMissThreshold = 10
)

type Phase int

const (
	Uninitialized Phase = iota
	Tracking
)

func (p Phase) String() string {
	if p == Tracking {
		return "tracking"
	}
	return "uninitialized"
}

// Params are fixed for the lifetime of one clip.
type Params struct {
	FrameWidth  int
	TargetWidth int
	Margin      float64
	Strategy    types.Strategy
}

func (p Params) maxX() int { return p.FrameWidth - p.TargetWidth }

func (p Params) clamp(x int) int {
	if x > p.maxX() {
		x = p.maxX()
	}
	if x < 0 {
		x = 0
	}
	return x
}

func (p Params) safeZone() (left, right float64) {
	m := p.Margin
	if m <= 0 || m >= 0.5 {
		m = DefaultMargin
	}
	return float64(p.TargetWidth) * m, float64(p.TargetWidth) * (1 - m)
}

type State struct {
	Phase Phase
	CropX int
}

// NextCrop advances the crop state machine by one frame. face is the current
// face estimate; nil means none is known.
func NextCrop(p Params, s State, face *types.FaceBox) (State, int) {
	if face == nil {
		if s.Phase == Uninitialized {
			return s, p.maxX() / 2
		}
		return s, s.CropX
	}

	cx := face.CenterX()
	if s.Phase == Uninitialized || p.Strategy == types.StrategyCentered {
		x := p.clamp(cx - p.TargetWidth/2)
		return State{Phase: Tracking, CropX: x}, x
	}

	safeLeft, safeRight := p.safeZone()
	inCrop := float64(cx - s.CropX)
	x := s.CropX
	switch {
	case inCrop < safeLeft:
		x = p.clamp(cx - int(safeLeft))
	case inCrop > safeRight:
		x = p.clamp(cx - int(safeRight))
	}
	return State{Phase: Tracking, CropX: x}, x
}
