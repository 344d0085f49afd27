package mcpserver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvas/internal/clock"
	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/service"
	"canvas/internal/storage"
	"canvas/internal/viewport"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestServer(t *testing.T, requireApproval bool) (*Server, *service.MockEmitter) {
	t.Helper()
	db, err := storage.Open(storage.SQLite, filepath.Join(t.TempDir(), "canvas.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store := storage.NewStore(db, 20*time.Millisecond, nil)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	img := &domain.Preview{
		PreviewID:  "img",
		Name:       "photo.png",
		MimeType:   "image/png",
		Dimensions: [2]float64{300, 200},
		Instances:  []domain.Instance{{InstanceID: "img-1", X: 0, Y: 0, Scale: 1}},
	}
	if err := store.CreatePreview(ctx, "c1", img); err != nil {
		t.Fatal(err)
	}

	emitter := &service.MockEmitter{}
	sync := service.NewSyncService(store, emitter, nil)
	if err := sync.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sync.Stop)

	return New(ctx, Deps{Emitter: emitter, Sync: sync, RequireApproval: requireApproval}), emitter
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

// eventually polls cond until it holds or the deadline passes.
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

func instancesOf(s *Server, previewID string) []domain.Instance {
	p, ok := s.sync.Snapshot().Preview(previewID)
	if !ok {
		return nil
	}
	return p.Instances
}

func TestListMedia(t *testing.T) {
	s, _ := newTestServer(t, false)

	res, err := s.handleListMedia(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, `"instanceId": "img-1"`) || !strings.Contains(text, `"name": "photo.png"`) {
		t.Errorf("list_media = %s", text)
	}

	res, _ = s.handleListMedia(context.Background(), call(map[string]any{"kind": "container"}))
	if got := resultText(t, res); got != "[]" {
		t.Errorf("container filter = %s, want []", got)
	}
}

func TestAddNote_AutoPlaced(t *testing.T) {
	s, emitter := newTestServer(t, false)

	if _, err := s.handleAddNote(context.Background(), call(map[string]any{})); err == nil {
		t.Fatal("expected error without text")
	}

	if _, err := s.handleAddNote(context.Background(), call(map[string]any{"text": "idea"})); err != nil {
		t.Fatal(err)
	}
	eventually(t, "note in snapshot", func() bool { return len(s.sync.Snapshot().Placed()) == 2 })

	for _, e := range s.sync.Snapshot().Placed() {
		if e.Preview == nil || !e.Preview.IsNote() {
			continue
		}
		if e.Instance.Text != "idea" {
			t.Errorf("note text = %q", e.Instance.Text)
		}
		img := viewport.Rect{W: 300, H: 200}
		if footprint(e).Intersects(img) {
			t.Errorf("note at (%.0f, %.0f) overlaps the image", e.Instance.X, e.Instance.Y)
		}
	}
	if emitter.Count(EventMediaChanged) != 1 {
		t.Errorf("media-changed emitted %d times", emitter.Count(EventMediaChanged))
	}
}

func TestDuplicateAndMoveInstance(t *testing.T) {
	s, _ := newTestServer(t, false)
	ctx := context.Background()

	if _, err := s.handleDuplicateInstance(ctx, call(map[string]any{"instanceId": "img-1"})); err != nil {
		t.Fatal(err)
	}
	eventually(t, "duplicate", func() bool { return len(instancesOf(s, "img")) == 2 })
	dup := instancesOf(s, "img")[1]
	if dup.X != 20 || dup.Y != 20 || dup.Scale != 1 || dup.InstanceID == "img-1" {
		t.Errorf("duplicate = %+v", dup)
	}

	_, err := s.handleMoveInstance(ctx, call(map[string]any{"instanceId": "img-1", "x": 100.0, "y": 50.0}))
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "move", func() bool {
		list := instancesOf(s, "img")
		return len(list) == 2 && list[0].X == 100 && list[0].Y == 50
	})

	_, err = s.handleMoveInstance(ctx, call(map[string]any{"instanceId": "img-1", "x": 1.0, "y": 1.0, "scale": -1.0}))
	if err == nil {
		t.Error("expected error for negative scale")
	}
	_, err = s.handleMoveInstance(ctx, call(map[string]any{"instanceId": "img-1", "kind": "container", "x": 1.0, "y": 1.0}))
	if err == nil {
		t.Error("expected error for kind mismatch")
	}
}

func TestDeleteInstance_Approval(t *testing.T) {
	s, emitter := newTestServer(t, true)
	ctx := context.Background()

	run := func() <-chan error {
		errc := make(chan error, 1)
		go func() {
			_, err := s.handleDeleteInstance(ctx, call(map[string]any{"instanceId": "img-1"}))
			errc <- err
		}()
		return errc
	}
	pendingID := func() string {
		var id string
		eventually(t, "approval request", func() bool {
			ids := s.approval.Pending()
			if len(ids) == 1 {
				id = ids[0]
			}
			return id != ""
		})
		return id
	}

	errc := run()
	s.Reject(pendingID())
	if err := <-errc; !errors.Is(err, ErrRejected) {
		t.Fatalf("rejected delete returned %v", err)
	}
	if len(instancesOf(s, "img")) != 1 {
		t.Fatal("rejected delete removed the instance")
	}

	errc = run()
	s.Approve(pendingID())
	if err := <-errc; err != nil {
		t.Fatalf("approved delete: %v", err)
	}
	eventually(t, "instance removed", func() bool { return len(s.sync.Snapshot().Placed()) == 0 })
	if n := emitter.Count(EventApprovalRequired); n != 2 {
		t.Errorf("approval-required emitted %d times", n)
	}
}

func TestApprovalQueue_Timeout(t *testing.T) {
	emitter := &service.MockEmitter{}
	clk := clock.Fake(time.Unix(0, 0))
	q := NewApprovalQueue(context.Background(), emitter, clk)

	errc := make(chan error, 1)
	go func() { errc <- q.Request("delete_instance", "delete", selection.Key{Kind: domain.KindPreview, ItemID: "img", InstanceID: "img-1"}) }()

	clk.WaitForTimers(1)
	clk.Advance(DefaultApprovalTimeout - time.Second)
	if len(q.Pending()) != 1 {
		t.Fatal("request answered before the timeout")
	}
	clk.Advance(time.Second)
	if err := <-errc; !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Request = %v", err)
	}
	if emitter.Count(EventApprovalDismissed) != 1 {
		t.Error("dismissal not emitted")
	}
	if len(q.Pending()) != 0 {
		t.Error("timed out request still pending")
	}
}

func TestApprovalQueue_FirstAnswerWins(t *testing.T) {
	q := NewApprovalQueue(context.Background(), &service.MockEmitter{}, clock.Fake(time.Unix(0, 0)))

	errc := make(chan error, 1)
	go func() { errc <- q.Request("delete_instance", "delete") }()
	eventually(t, "pending", func() bool { return len(q.Pending()) == 1 })

	id := q.Pending()[0]
	q.Approve(id)
	q.Reject(id)
	if err := <-errc; err != nil {
		t.Fatalf("approved request returned %v", err)
	}
}

func TestMediaResource(t *testing.T) {
	s, _ := newTestServer(t, false)

	contents, err := s.handleMediaResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != mediaResourceURI || !strings.Contains(tc.Text, "img-1") {
		t.Errorf("resource = %+v", contents[0])
	}
}
