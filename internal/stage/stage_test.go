package stage_test

import (
	"testing"

	"canvas/internal/domain"
	"canvas/internal/drag"
	"canvas/internal/selection"
	"canvas/internal/stage"
	"canvas/internal/viewport"
)

// ─────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────

type fakeSource struct {
	previews   map[string]*domain.Preview
	containers map[string]*domain.Container
}

func (f *fakeSource) Preview(id string) (*domain.Preview, bool) {
	p, ok := f.previews[id]
	return p, ok
}

func (f *fakeSource) Container(id string) (*domain.Container, bool) {
	c, ok := f.containers[id]
	return c, ok
}

func (f *fakeSource) Placed() []selection.Entry {
	var out []selection.Entry
	for _, p := range f.previews {
		for _, in := range p.Instances {
			out = append(out, selection.PreviewEntry(p, in, ""))
		}
	}
	for _, c := range f.containers {
		for _, in := range c.Instances {
			out = append(out, selection.ContainerEntry(c, in, ""))
		}
	}
	return out
}

type call struct {
	op     string
	itemID string
	in     domain.Instance
}

type fakeMutator struct {
	calls []call
	fresh []string
}

func (m *fakeMutator) AddPreviewInstance(id string, in domain.Instance) string {
	m.calls = append(m.calls, call{"add-preview", id, in})
	if in.InstanceID == "" {
		in.InstanceID = "generated"
	}
	return in.InstanceID
}

func (m *fakeMutator) AddContainerInstance(id string, in domain.Instance) string {
	m.calls = append(m.calls, call{"add-container", id, in})
	return "generated"
}

func (m *fakeMutator) DeletePreviewInstance(id, instanceID string) {
	m.calls = append(m.calls, call{"delete-preview", id, domain.Instance{InstanceID: instanceID}})
}

func (m *fakeMutator) DeleteContainerInstance(id, instanceID string) {
	m.calls = append(m.calls, call{"delete-container", id, domain.Instance{InstanceID: instanceID}})
}

func (m *fakeMutator) MarkFresh(id string) { m.fresh = append(m.fresh, id) }

type fakeIndex map[string]viewport.Rect

func (f fakeIndex) ClientRect(selection.NodeRef) (viewport.Rect, bool) { return viewport.Rect{}, false }

func (f fakeIndex) ContainerInstanceRect(id string) (viewport.Rect, bool) {
	r, ok := f[id]
	return r, ok
}

type fixture struct {
	ctl  *stage.Controller
	vp   *viewport.Controller
	src  *fakeSource
	mut  *fakeMutator
	img  *domain.Preview
	note *domain.Preview
	box  *domain.Container
}

func newFixture() *fixture {
	img := &domain.Preview{
		PreviewID: "img", MimeType: "image/png", Dimensions: [2]float64{100, 100},
		Instances: []domain.Instance{
			{InstanceID: "img-a", X: 0, Y: 0, Scale: 1},
			{InstanceID: "img-b", X: 500, Y: 500, Scale: 1},
		},
	}
	note := &domain.Preview{
		PreviewID: "note", MimeType: domain.NoteMimeType,
		Instances: []domain.Instance{{InstanceID: "note-a", X: 10, Y: 10, Scale: 1, Text: "hi", FontSize: "12"}},
	}
	box := &domain.Container{
		ContainerID: "box", Width: 300, Height: 232,
		Instances: []domain.Instance{{InstanceID: "box-a", X: 1000, Y: 1000, Scale: 1}},
	}
	src := &fakeSource{
		previews:   map[string]*domain.Preview{"img": img, "note": note},
		containers: map[string]*domain.Container{"box": box},
	}
	vp := viewport.NewController(viewport.Default(), nil, nil)
	mut := &fakeMutator{}
	index := fakeIndex{"box-a": {X: 1000, Y: 1000, W: 300, H: 200}}
	sel := selection.New()
	ctl := stage.New(stage.Options{
		Viewport:  vp,
		Selection: sel,
		Drag:      drag.New(vp, src, index, mut, nil),
		Source:    src,
		Index:     index,
		Mutator:   mut,
	})
	return &fixture{ctl: ctl, vp: vp, src: src, mut: mut, img: img, note: note, box: box}
}

func (f *fixture) imgEntry(i int) selection.Entry {
	return selection.PreviewEntry(f.img, f.img.Instances[i], "")
}

func (f *fixture) boxEntry() selection.Entry {
	return selection.ContainerEntry(f.box, f.box.Instances[0], "")
}

func stageAt(x, y float64) stage.PointerEvent {
	return stage.PointerEvent{Screen: viewport.Point{X: x, Y: y}, Target: stage.Target{Kind: stage.TargetStage}}
}

// ─────────────────────────────────────────────────────────────
// Box select
// ─────────────────────────────────────────────────────────────

func TestBoxSelect_SelectsIntersectingInstances(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.boxEntry(), false)

	f.ctl.PointerDown(stageAt(-50, -50))
	if f.ctl.State() != stage.BoxSelecting {
		t.Fatalf("state = %v, want box-selecting", f.ctl.State())
	}
	f.ctl.PointerMove(stageAt(50, 50))
	if r, ok := f.ctl.SelectArea(); !ok || r != (viewport.Rect{X: -50, Y: -50, W: 100, H: 100}) {
		t.Fatalf("select area = %+v %v", r, ok)
	}
	f.ctl.PointerUp(stageAt(50, 50))

	sel := f.ctl.Selection()
	if f.ctl.State() != stage.Idle {
		t.Errorf("state = %v after release", f.ctl.State())
	}
	if !sel.IsSelected(f.imgEntry(0).Key()) {
		t.Error("img-a intersects the box and should be selected")
	}
	if sel.IsSelected(f.imgEntry(1).Key()) || sel.IsSelected(f.boxEntry().Key()) {
		t.Error("instances outside the box must not be selected")
	}
	if _, ok := f.ctl.SelectArea(); ok {
		t.Error("select area should be gone after release")
	}
}

func TestBoxSelect_ZeroAreaClickClears(t *testing.T) {
	f := newFixture()
	f.ctl.FocusContainer(f.boxEntry())
	f.ctl.PointerDown(stageAt(-200, -200))
	f.ctl.PointerUp(stageAt(-200, -200))
	if f.ctl.Selection().Len() != 0 {
		t.Fatal("click on empty stage must clear selection")
	}
	if _, ok := f.ctl.Selection().ActiveContainer(); ok {
		t.Fatal("click on empty stage must clear container focus")
	}
}

func TestBoxSelect_ReleaseOverMediaStillSelects(t *testing.T) {
	f := newFixture()
	f.ctl.PointerDown(stageAt(-50, -50))
	f.ctl.PointerMove(stageAt(550, 550))
	f.ctl.PointerUp(stage.PointerEvent{
		Screen: viewport.Point{X: 550, Y: 550},
		Target: stage.Target{Kind: stage.TargetMedia, Key: f.imgEntry(1).Key()},
	})

	sel := f.ctl.Selection()
	if !sel.IsSelected(f.imgEntry(0).Key()) || !sel.IsSelected(f.imgEntry(1).Key()) {
		t.Fatalf("both image instances lie in the box, selected %d", sel.Len())
	}
	if sel.IsSelected(f.boxEntry().Key()) {
		t.Error("box-a lies outside the box")
	}
}

func TestEscapeAbandonsBoxSelect(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.boxEntry(), false)
	f.ctl.PointerDown(stageAt(-50, -50))
	f.ctl.PointerMove(stageAt(50, 50))
	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyEscape})
	if _, ok := f.ctl.SelectArea(); ok {
		t.Fatal("select area should be gone after escape")
	}
	f.ctl.PointerUp(stage.PointerEvent{Screen: viewport.Point{X: 50, Y: 50}, Target: stage.Target{Kind: stage.TargetMedia}})
	if sel := f.ctl.Selection(); sel.IsSelected(f.imgEntry(0).Key()) || !sel.IsSelected(f.boxEntry().Key()) {
		t.Error("an abandoned box select must leave the selection alone")
	}
}

func TestPressInsideSelectionBoundsDoesNotBoxSelect(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.imgEntry(1), false)
	f.ctl.PointerDown(stageAt(550, 550))
	if f.ctl.State() != stage.Idle {
		t.Fatalf("state = %v, want idle", f.ctl.State())
	}
}

func TestPointerLeaveAbandonsBoxSelect(t *testing.T) {
	f := newFixture()
	f.ctl.PointerDown(stageAt(0, 0))
	f.ctl.PointerLeave()
	if f.ctl.State() != stage.Idle {
		t.Fatalf("state = %v, want idle", f.ctl.State())
	}
}

// ─────────────────────────────────────────────────────────────
// Resize flag
// ─────────────────────────────────────────────────────────────

func TestResizeReleaseKeepsSelection(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.imgEntry(0), false)
	f.ctl.PointerDown(stage.PointerEvent{Target: stage.Target{Kind: stage.TargetResizeAnchor}})
	if !f.ctl.Resizing() {
		t.Fatal("press on anchor should set resizing")
	}
	f.ctl.PointerUp(stage.PointerEvent{Target: stage.Target{Kind: stage.TargetSelectionArea}})
	if f.ctl.Selection().Len() != 1 {
		t.Fatal("release after resize must keep the selection")
	}
	if f.ctl.Resizing() {
		t.Fatal("resizing flag must reset on release")
	}
	f.ctl.PointerUp(stage.PointerEvent{Target: stage.Target{Kind: stage.TargetSelectionArea}})
	if f.ctl.Selection().Len() != 0 {
		t.Fatal("release on the selection area clears when not resizing")
	}
}

// ─────────────────────────────────────────────────────────────
// Panning
// ─────────────────────────────────────────────────────────────

func TestSpacePan(t *testing.T) {
	f := newFixture()
	f.vp.SetPan(viewport.Point{X: 10, Y: 10})

	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeySpace})
	if f.ctl.Cursor() != stage.CursorGrab {
		t.Fatalf("cursor = %v, want grab", f.ctl.Cursor())
	}
	if f.ctl.State() != stage.Idle {
		t.Fatal("space alone must not start panning")
	}
	f.ctl.PointerDown(stageAt(100, 100))
	if f.ctl.State() != stage.Panning || f.ctl.Cursor() != stage.CursorGrabbing {
		t.Fatalf("state=%v cursor=%v", f.ctl.State(), f.ctl.Cursor())
	}
	f.ctl.PointerMove(stageAt(130, 80))
	if got := f.vp.Viewport().Pan; got != (viewport.Point{X: 40, Y: -10}) {
		t.Errorf("pan = %v, want (40,-10)", got)
	}
	f.ctl.PointerUp(stage.PointerEvent{Target: stage.Target{Kind: stage.TargetMedia}})
	if f.ctl.State() != stage.Idle || f.ctl.Cursor() != stage.CursorGrab {
		t.Errorf("after release state=%v cursor=%v", f.ctl.State(), f.ctl.Cursor())
	}
	f.ctl.KeyUp(stage.KeyEvent{Code: stage.KeySpace})
	if f.ctl.Cursor() != stage.CursorDefault {
		t.Errorf("cursor = %v after key up", f.ctl.Cursor())
	}
}

func TestSelectMediaIgnoredWhilePanReady(t *testing.T) {
	f := newFixture()
	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeySpace})
	f.ctl.SelectMedia(f.imgEntry(0), false)
	if f.ctl.Selection().Len() != 0 {
		t.Fatal("media press while holding space must not select")
	}
}

// ─────────────────────────────────────────────────────────────
// Keyboard commands
// ─────────────────────────────────────────────────────────────

func TestDeleteSelected(t *testing.T) {
	for _, code := range []string{stage.KeyDelete, stage.KeyBackspace} {
		t.Run(code, func(t *testing.T) {
			f := newFixture()
			f.ctl.SelectMedia(f.imgEntry(0), false)
			f.ctl.SelectMedia(f.boxEntry(), true)
			f.ctl.KeyDown(stage.KeyEvent{Code: code})

			if len(f.mut.calls) != 2 {
				t.Fatalf("expected 2 deletes, got %+v", f.mut.calls)
			}
			if c := f.mut.calls[0]; c.op != "delete-preview" || c.itemID != "img" || c.in.InstanceID != "img-a" {
				t.Errorf("unexpected first call %+v", c)
			}
			if c := f.mut.calls[1]; c.op != "delete-container" || c.itemID != "box" || c.in.InstanceID != "box-a" {
				t.Errorf("unexpected second call %+v", c)
			}
			if f.ctl.Selection().Len() != 0 {
				t.Error("selection should be cleared")
			}
		})
	}
}

func TestDuplicateSelected(t *testing.T) {
	f := newFixture()
	noteEntry := selection.PreviewEntry(f.note, f.note.Instances[0], "")
	f.ctl.SelectMedia(noteEntry, false)
	f.ctl.SelectMedia(f.boxEntry(), true)

	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyPaste, Repeat: true})
	if len(f.mut.calls) != 0 {
		t.Fatal("key repeats must be ignored")
	}
	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyPaste})
	if len(f.mut.calls) != 2 {
		t.Fatalf("expected 2 adds, got %+v", f.mut.calls)
	}
	n := f.mut.calls[0]
	if n.op != "add-preview" || n.in.X != 30 || n.in.Y != 30 || n.in.Text != "hi" || n.in.FontSize != "12" || n.in.Scale != 1 {
		t.Errorf("note duplicate wrong: %+v", n)
	}
	b := f.mut.calls[1]
	if b.op != "add-container" || b.in.X != 1020 || b.in.Y != 1020 || b.in.Text != "" {
		t.Errorf("container duplicate wrong: %+v", b)
	}
	if len(f.mut.fresh) != 0 {
		t.Error("duplicates must not be auto-selected")
	}
	if f.ctl.Selection().Len() != 0 {
		t.Error("selection should be cleared after duplicate")
	}
}

func TestCopyKeyIsInert(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.imgEntry(0), false)
	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyCopy})
	if len(f.mut.calls) != 0 || f.ctl.Selection().Len() != 1 {
		t.Fatal("copy key must do nothing")
	}
}

func TestResetZoomKey(t *testing.T) {
	f := newFixture()
	f.ctl.Wheel(viewport.WheelEvent{Pointer: viewport.Point{X: 10, Y: 10}, DeltaY: -110, ZoomModifier: true})
	if f.vp.Viewport().Zoom != 2 {
		t.Fatalf("zoom = %v, want 2", f.vp.Viewport().Zoom)
	}
	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyResetZoom})
	if f.vp.Viewport().Zoom != 1 {
		t.Fatalf("zoom = %v, want 1", f.vp.Viewport().Zoom)
	}
}

// ─────────────────────────────────────────────────────────────
// Container preview drag
// ─────────────────────────────────────────────────────────────

func TestContainerDragCopiesOut(t *testing.T) {
	f := newFixture()
	nested := domain.Preview{
		PreviewID: "nested", ContainerID: "box", Linked: true, ContainerX: 10, ContainerY: 10,
		Dimensions: [2]float64{150, 150},
	}
	press := stage.PointerEvent{Screen: viewport.Point{X: 1020, Y: 1020}, Target: stage.Target{Kind: stage.TargetMedia}}
	if !f.ctl.BeginContainerDrag(press, f.boxEntry(), nested) {
		t.Fatal("drag did not start")
	}
	if f.ctl.State() != stage.DraggingContainerPreview {
		t.Fatalf("state = %v", f.ctl.State())
	}
	if _, ok := f.ctl.Selection().ActiveContainer(); !ok {
		t.Fatal("pressing a nested preview focuses its container")
	}

	f.ctl.PointerMove(stage.PointerEvent{Screen: viewport.Point{X: 1520, Y: 1020}})
	if off, ok := f.ctl.DragOffset(); !ok || off != (viewport.Point{X: 1500, Y: 1000}) {
		t.Fatalf("drag offset = %v %v", off, ok)
	}
	f.ctl.PointerUp(stage.PointerEvent{Screen: viewport.Point{X: 1520, Y: 1020}, Target: stage.Target{Kind: stage.TargetMedia}})

	if len(f.mut.calls) != 1 {
		t.Fatalf("expected one copied-out instance, got %+v", f.mut.calls)
	}
	c := f.mut.calls[0]
	if c.op != "add-preview" || c.itemID != "nested" || c.in.X != 1510 || c.in.Y != 1010 {
		t.Errorf("unexpected copy-out %+v", c)
	}
	if len(f.mut.fresh) != 1 {
		t.Error("copied-out instance should be marked fresh")
	}
	if f.ctl.Selection().Len() != 0 {
		t.Error("selection is replaced with nothing after a container drag")
	}
	if f.ctl.State() != stage.Idle {
		t.Errorf("state = %v", f.ctl.State())
	}
}

func TestEscapeCancelsContainerDrag(t *testing.T) {
	f := newFixture()
	nested := domain.Preview{PreviewID: "nested", ContainerID: "box", Linked: true, Dimensions: [2]float64{150, 150}}
	press := stage.PointerEvent{Screen: viewport.Point{X: 1020, Y: 1020}, Target: stage.Target{Kind: stage.TargetMedia}}
	if !f.ctl.BeginContainerDrag(press, f.boxEntry(), nested) {
		t.Fatal("drag did not start")
	}
	f.ctl.PointerMove(stage.PointerEvent{Screen: viewport.Point{X: 1520, Y: 1020}})

	f.ctl.KeyDown(stage.KeyEvent{Code: stage.KeyEscape})
	if f.ctl.State() != stage.Idle {
		t.Fatalf("state = %v after escape", f.ctl.State())
	}
	if _, ok := f.ctl.DragOffset(); ok {
		t.Error("no drag offset after escape")
	}

	f.ctl.PointerUp(stage.PointerEvent{Screen: viewport.Point{X: 1520, Y: 1020}, Target: stage.Target{Kind: stage.TargetMedia}})
	if len(f.mut.calls) != 0 {
		t.Fatalf("a cancelled drag must not write, got %+v", f.mut.calls)
	}
}

func TestContainerDragShiftAccumulates(t *testing.T) {
	f := newFixture()
	a := domain.Preview{PreviewID: "a", ContainerID: "box", Linked: true, Dimensions: [2]float64{150, 150}}
	b := domain.Preview{PreviewID: "b", ContainerID: "box", Linked: true, Dimensions: [2]float64{150, 150}}
	at := viewport.Point{X: 1050, Y: 1050}

	f.ctl.BeginContainerDrag(stage.PointerEvent{Screen: at}, f.boxEntry(), a)
	f.ctl.PointerUp(stage.PointerEvent{Screen: at, Target: stage.Target{Kind: stage.TargetMedia}})
	// the release replaced the selection, so re-focus happens on the next press
	f.ctl.BeginContainerDrag(stage.PointerEvent{Screen: at}, f.boxEntry(), a)
	f.ctl.BeginContainerDrag(stage.PointerEvent{Screen: at, Shift: true}, f.boxEntry(), b)

	got := f.ctl.NestedSelection()
	if len(got) != 2 || got[0].PreviewID != "a" || got[1].PreviewID != "b" {
		t.Fatalf("nested selection = %+v", got)
	}
	sess := f.ctl.State()
	if sess != stage.DraggingContainerPreview {
		t.Fatalf("state = %v", sess)
	}
}

// ─────────────────────────────────────────────────────────────
// Auto-select
// ─────────────────────────────────────────────────────────────

func TestAutoSelectAppends(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.imgEntry(0), false)
	f.ctl.AutoSelect([]selection.Entry{f.imgEntry(0), f.imgEntry(1)})
	sel := f.ctl.Selection()
	if sel.Len() != 2 || !sel.IsSelected(f.imgEntry(0).Key()) || !sel.IsSelected(f.imgEntry(1).Key()) {
		t.Fatalf("auto-select must add without toggling, got %d entries", sel.Len())
	}
}

func TestReconcileDropsDeletedInstances(t *testing.T) {
	f := newFixture()
	f.ctl.SelectMedia(f.imgEntry(1), false)
	f.img.Instances = f.img.Instances[:1]
	f.ctl.Reconcile(nil)
	if f.ctl.Selection().Len() != 0 {
		t.Fatal("selection still holds a deleted instance")
	}
}
