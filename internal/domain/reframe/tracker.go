package reframe

import "github.com/forPelevin/cliper/internal/types"

// Tracker drives NextCrop across a frame loop. Detection results are fed in
// with Observe on sampled frames only; Crop is called once per frame.
type Tracker struct {
	p             Params
	missThreshold int

	state    State
	face     *types.FaceBox
	misses   int
	fellBack bool
}

func NewTracker(p Params, missThreshold int) *Tracker {
	if missThreshold <= 0 {
		missThreshold = DefaultMissThreshold
	}
	return &Tracker{p: p, missThreshold: missThreshold}
}

// Observe records the detection result of a sampled frame. It reports true
// on the call that switches to the centered fallback.
func (t *Tracker) Observe(face *types.FaceBox) bool {
	if face != nil {
		f := *face
		t.face = &f
		t.misses = 0
		return false
	}
	t.misses++
	if t.misses > t.missThreshold && t.face == nil {
		t.face = &types.FaceBox{X: t.p.FrameWidth / 2}
		t.fellBack = true
		return true
	}
	return false
}

func (t *Tracker) Crop() int {
	var x int
	t.state, x = NextCrop(t.p, t.state, t.face)
	return x
}

func (t *Tracker) State() State   { return t.state }
func (t *Tracker) FellBack() bool { return t.fellBack }
func (t *Tracker) Misses() int    { return t.misses }
