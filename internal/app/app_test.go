package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"canvas/internal/config"
	"canvas/internal/daemon"
	"canvas/internal/domain"
	"canvas/internal/service"
	"canvas/internal/stage"
	"canvas/internal/storage"
	"canvas/internal/viewport"
)

func newTestApp(t *testing.T) (*App, *service.MockEmitter) {
	t.Helper()
	db, err := storage.Open(storage.SQLite, filepath.Join(t.TempDir(), "canvas.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store := storage.NewStore(db, 20*time.Millisecond, nil)

	cfg := &config.Config{
		Store:    config.Store{Driver: "sqlite"},
		Presence: config.Presence{Timeout: 15 * time.Minute, Name: "tester"},
	}
	emitter := &service.MockEmitter{}
	a := New()
	a.wire(context.Background(), cfg, store, emitter, nil)
	if err := a.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a, emitter
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStart_CreatesCanvas(t *testing.T) {
	a, _ := newTestApp(t)

	if a.cfg.CanvasID == "" {
		t.Fatal("no canvas id assigned")
	}
	c, err := a.store.GetCanvas(context.Background(), a.cfg.CanvasID)
	if err != nil || len(c.ShortCode) != 6 {
		t.Fatalf("GetCanvas = %+v, %v", c, err)
	}

	st := a.GetState()
	if st.CanvasID != a.cfg.CanvasID || st.Daemon != "disconnected" || st.Mode != "idle" {
		t.Errorf("state = %+v", st)
	}
	if st.Self.Name != "tester" || len(st.Present) != 1 {
		t.Errorf("presence = %+v / %+v", st.Self, st.Present)
	}
}

func TestCreateNote_SelectedWhenItLands(t *testing.T) {
	a, emitter := newTestApp(t)

	if _, err := a.RestoreLocation("100,50,2"); err != nil {
		t.Fatal(err)
	}
	ref := a.CreateNote(viewport.Point{X: 300, Y: 250}, "hello", "16px")

	eventually(t, "note selected", func() bool {
		return len(a.GetState().Selection) == 1
	})
	st := a.GetState()
	if st.Selection[0].InstanceID != ref.InstanceID || st.Selection[0].Kind != domain.KindPreview {
		t.Errorf("selection = %+v, want %+v", st.Selection, ref)
	}
	p, ok := a.GetSnapshot().Preview(ref.ItemID)
	if !ok {
		t.Fatal("note missing from snapshot")
	}
	// (300-100)/2, (250-50)/2
	if in := p.Instances[0]; in.X != 100 || in.Y != 100 || in.Text != "hello" {
		t.Errorf("note instance = %+v", in)
	}
	if emitter.Count(service.EventSnapshot) == 0 {
		t.Error("no snapshot event")
	}
}

func TestUpdateNoteAndMoveInstance(t *testing.T) {
	a, _ := newTestApp(t)
	ref := a.CreateNote(viewport.Point{}, "a", "")
	eventually(t, "note", func() bool { _, ok := a.GetSnapshot().Preview(ref.ItemID); return ok })

	if err := a.MoveInstance(ref, 10, 20, 0); err == nil {
		t.Error("expected error for zero scale")
	}
	if err := a.MoveInstance(ref, 10, 20, 2); err != nil {
		t.Fatal(err)
	}
	eventually(t, "move", func() bool {
		p, _ := a.GetSnapshot().Preview(ref.ItemID)
		return p.Instances[0].X == 10 && p.Instances[0].Scale == 2
	})
	if err := a.UpdateNote(ref, "b", "24px"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "text", func() bool {
		p, _ := a.GetSnapshot().Preview(ref.ItemID)
		in := p.Instances[0]
		return in.Text == "b" && in.FontSize == "24px" && in.X == 10
	})

	missing := MediaRef{Kind: domain.KindPreview, ItemID: ref.ItemID, InstanceID: "nope"}
	if err := a.SelectMedia(missing, false); err == nil {
		t.Error("expected error for unknown instance")
	}
}

func TestKeyboardDeleteRemovesSelection(t *testing.T) {
	a, _ := newTestApp(t)
	ref := a.CreateNote(viewport.Point{}, "bye", "")
	eventually(t, "note selected", func() bool { return len(a.GetState().Selection) == 1 })

	a.KeyDown(stage.KeyEvent{Code: stage.KeyDelete})
	if n := len(a.GetState().Selection); n != 0 {
		t.Errorf("selection after delete = %d", n)
	}
	eventually(t, "instance removed", func() bool {
		_, ok := a.GetSnapshot().Preview(ref.ItemID)
		return !ok
	})
}

func TestWheelAppliesOnFrame(t *testing.T) {
	a, emitter := newTestApp(t)

	if !a.Wheel(viewport.WheelEvent{DeltaX: 10, DeltaY: 20}) {
		t.Fatal("wheel must suppress native handling")
	}
	if got := a.GetState().Viewport.Pan; got != (viewport.Point{}) {
		t.Fatalf("pan moved before the frame: %+v", got)
	}
	a.flushFrames()
	if got := a.GetState().Viewport.Pan; got == (viewport.Point{}) {
		t.Error("pan unchanged after the frame")
	}
	if emitter.Count(service.EventViewport) != 1 {
		t.Errorf("viewport events = %d", emitter.Count(service.EventViewport))
	}
}

func TestDropFilesWhileDisconnected(t *testing.T) {
	a, emitter := newTestApp(t)

	err := a.DropFiles([]DropInput{{FileName: "a.png", Type: "image/png"}}, viewport.Point{})
	if !errors.Is(err, daemon.ErrNotConnected) {
		t.Fatalf("DropFiles = %v", err)
	}
	if emitter.AlertCount() != 1 {
		t.Errorf("alerts = %d", emitter.AlertCount())
	}
}

func TestReportNodeRects(t *testing.T) {
	a, _ := newTestApp(t)
	a.ReportNodeRects([]NodeRect{{InstanceID: "n1", Rect: viewport.Rect{W: 10, H: 5}}}, false)
	if r, ok := a.index.ClientRect("n1"); !ok || r.W != 10 {
		t.Errorf("ClientRect = %+v, %v", r, ok)
	}
	a.ReportNodeRects(nil, true)
	if _, ok := a.index.ContainerInstanceRect("n1"); ok {
		t.Error("replace kept a stale rect")
	}
}

func TestPresenceReachesFrontend(t *testing.T) {
	a, emitter := newTestApp(t)

	eventually(t, "presence event", func() bool { return emitter.Count(service.EventPresence) > 0 })
	if got := a.GetState().Present; len(got) != 1 || got[0].Name != "tester" {
		t.Fatalf("present = %+v", got)
	}
}
