package viewport

import (
	"sync"
	"time"

	"canvas/internal/clock"
)

// WheelThrottle is the minimum spacing between two applied wheel events.
// The first event of a burst applies at once and the last one held back
// applies when the window closes.
const WheelThrottle = 15 * time.Millisecond

// Frames schedules work on the next paint tick.
type Frames interface {
	Request(fn func())
}

// FrameFunc adapts a function to Frames.
type FrameFunc func(fn func())

func (f FrameFunc) Request(fn func()) { f(fn) }

// Immediate runs requested work synchronously.
var Immediate Frames = FrameFunc(func(fn func()) { fn() })

// WheelEvent is a raw wheel or trackpad event. ZoomModifier is set for
// pinch gestures and ctrl-scroll.
type WheelEvent struct {
	Pointer      Point   `json:"pointer"`
	DeltaX       float64 `json:"deltaX"`
	DeltaY       float64 `json:"deltaY"`
	ZoomModifier bool    `json:"zoomModifier"`
}

// Controller owns the viewport of one stage.
type Controller struct {
	mu       sync.Mutex
	vp       Viewport
	locked   bool
	frames   Frames
	onChange func(Viewport)

	clock     clock.Clock
	lastWheel time.Time
	held      *WheelEvent
	trailing  clock.Timer
}

// NewController returns a controller starting at initial. A nil frames
// runs work immediately and a nil clk uses the real clock.
func NewController(initial Viewport, frames Frames, clk clock.Clock) *Controller {
	if frames == nil {
		frames = Immediate
	}
	if clk == nil {
		clk = clock.Real()
	}
	if initial.Zoom == 0 {
		initial.Zoom = 1
	}
	return &Controller{
		vp:     initial,
		frames: frames,
		clock:  clk,
	}
}

// OnChange registers the listener called after every applied change.
func (c *Controller) OnChange(fn func(Viewport)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// SetLocked disables wheel handling, e.g. while a note is being edited.
func (c *Controller) SetLocked(locked bool) {
	c.mu.Lock()
	c.locked = locked
	c.mu.Unlock()
}

// SetPan moves the stage without changing the scale.
func (c *Controller) SetPan(p Point) {
	c.update(func(v Viewport) (Viewport, bool) {
		if v.Pan == p {
			return v, false
		}
		v.Pan = p
		return v, true
	})
}

// Set replaces the whole viewport, clamping the zoom.
func (c *Controller) Set(v Viewport) {
	v.Zoom = Clamp(v.Zoom)
	c.update(func(Viewport) (Viewport, bool) { return v, true })
}

// Wheel handles a wheel event. At most one event per WheelThrottle is
// applied, on the next frame: the first of a burst straight away and the
// latest of the rest when the window closes. The result is always true:
// the native scroll and zoom must be suppressed for every event,
// throttled or not.
func (c *Controller) Wheel(ev WheelEvent) bool {
	c.mu.Lock()
	now := c.clock.Now()
	if c.trailing == nil && (c.lastWheel.IsZero() || now.Sub(c.lastWheel) >= WheelThrottle) {
		c.lastWheel = now
		c.mu.Unlock()
		c.frames.Request(func() { c.applyWheel(ev) })
		return true
	}
	c.held = &ev
	if c.trailing == nil {
		c.trailing = c.clock.AfterFunc(WheelThrottle-now.Sub(c.lastWheel), c.flushWheel)
	}
	c.mu.Unlock()
	return true
}

// flushWheel applies the event held back during the last window.
func (c *Controller) flushWheel() {
	c.mu.Lock()
	ev := c.held
	c.held = nil
	c.trailing = nil
	c.lastWheel = c.clock.Now()
	c.mu.Unlock()
	if ev != nil {
		c.frames.Request(func() { c.applyWheel(*ev) })
	}
}

// ResetZoom forces the scale back to 1 around pointer. It skips the
// throttle so the shortcut is never swallowed.
func (c *Controller) ResetZoom(pointer Point) {
	c.frames.Request(func() {
		c.update(func(v Viewport) (Viewport, bool) {
			if c.locked {
				return v, false
			}
			return ZoomAt(v, pointer, 0, 1)
		})
	})
}

func (c *Controller) applyWheel(ev WheelEvent) {
	c.update(func(v Viewport) (Viewport, bool) {
		if c.locked {
			return v, false
		}
		if ev.ZoomModifier {
			return ZoomAt(v, ev.Pointer, ev.DeltaY, 0)
		}
		if ev.DeltaX == 0 && ev.DeltaY == 0 {
			return v, false
		}
		return Scroll(v, ev.DeltaX, ev.DeltaY), true
	})
}

// update runs fn under the lock and notifies outside it.
func (c *Controller) update(fn func(Viewport) (Viewport, bool)) {
	c.mu.Lock()
	next, changed := fn(c.vp)
	if changed {
		c.vp = next
	}
	listener := c.onChange
	c.mu.Unlock()
	if changed && listener != nil {
		listener(next)
	}
}
