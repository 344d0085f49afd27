package daemon_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"canvas/internal/daemon"
	"canvas/internal/domain"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func asset(id string, w, h float64) domain.Preview {
	return domain.Preview{PreviewID: id, Dimensions: [2]float64{w, h}}
}

func TestPartitionObjects(t *testing.T) {
	objects := []daemon.TargetObject{
		{Status: "success", TargetType: "asset", Data: raw(t, asset("a1", 150, 100))},
		{Status: "success", TargetType: "directory", Data: raw(t, domain.Container{ContainerID: "c1"})},
		{Status: "ambiguous", TargetType: "asset", Data: raw(t, daemon.AmbiguousData{FileName: "x.png", Paths: []string{"/a/x.png", "/b/x.png"}})},
		{Status: "error", ErrorType: "not_found", Target: daemon.DroppedFile{FileName: "gone.png"}},
		{Status: "error", ErrorType: "permission", Target: daemon.DroppedFile{FileName: "locked.png"}},
		{Status: "success", TargetType: "asset", Data: raw(t, asset("a2", 300, 100))},
	}
	p := daemon.PartitionObjects(objects)

	if len(p.Assets) != 2 || p.Assets[0].PreviewID != "a1" || p.Assets[1].PreviewID != "a2" {
		t.Errorf("assets = %+v", p.Assets)
	}
	if len(p.Directories) != 1 || p.Directories[0].ContainerID != "c1" {
		t.Errorf("directories = %+v", p.Directories)
	}
	if len(p.Ambiguous) != 1 || len(p.Ambiguous[0].Paths) != 2 {
		t.Errorf("ambiguous = %+v", p.Ambiguous)
	}
	if len(p.NotFound) != 1 || p.NotFound[0].FileName != "gone.png" {
		t.Errorf("not found = %+v", p.NotFound)
	}
	if len(p.Failed) != 1 || p.Failed[0].FileName != "locked.png" {
		t.Errorf("failed = %+v", p.Failed)
	}
}

func TestLayout_DirectoriesThenGrid(t *testing.T) {
	dirs := []domain.Container{{ContainerID: "d1"}, {ContainerID: "d2"}}
	assets := []domain.Preview{
		asset("p0", 150, 100),
		asset("p1", 150, 50),
		asset("p2", 150, 80),
		asset("p3", 150, 60),
		asset("p4", 150, 40),
		asset("p5", 300, 200),
	}
	got := daemon.Layout(100, 200, dirs, []float64{300, 50}, assets)

	want := []daemon.Placement{
		{Kind: domain.KindContainer, ID: "d1", X: 100, Y: 200, Scale: 1},
		{Kind: domain.KindContainer, ID: "d2", X: 100, Y: 500, Scale: 1},
		{Kind: domain.KindPreview, ID: "p0", X: 100, Y: 550, Scale: 1},
		{Kind: domain.KindPreview, ID: "p1", X: 260, Y: 550, Scale: 1},
		{Kind: domain.KindPreview, ID: "p2", X: 420, Y: 550, Scale: 1},
		{Kind: domain.KindPreview, ID: "p3", X: 580, Y: 550, Scale: 1},
		{Kind: domain.KindPreview, ID: "p4", X: 100, Y: 670, Scale: 1},
		{Kind: domain.KindPreview, ID: "p5", X: 260, Y: 620, Scale: 0.5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d placements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("placement %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLayout_ColumnCursorsStrictlyIncrease(t *testing.T) {
	var assets []domain.Preview
	for i := 0; i < 13; i++ {
		assets = append(assets, asset(string(rune('a'+i)), 100+float64(i)*10, 40+float64(i)*7))
	}
	got := daemon.Layout(0, 0, nil, nil, assets)

	last := map[float64]float64{}
	for i, pl := range got {
		col := i % daemon.GridColumns
		if pl.X != float64(col)*daemon.GridColumnStep {
			t.Errorf("item %d x = %v, want column %d", i, pl.X, col)
		}
		if prev, ok := last[pl.X]; ok && pl.Y <= prev {
			t.Errorf("item %d y = %v did not advance past %v", i, pl.Y, prev)
		}
		last[pl.X] = pl.Y
	}
}

type recordingMutator struct {
	mu         sync.Mutex
	previews   []string
	containers []string
	instances  []domain.Instance
}

func (m *recordingMutator) AddPreviewInstance(id string, in domain.Instance) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews = append(m.previews, id)
	m.instances = append(m.instances, in)
	return "p-" + id
}

func (m *recordingMutator) AddContainerInstance(id string, in domain.Instance) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers = append(m.containers, id)
	m.instances = append(m.instances, in)
	return "c-" + id
}

type heightReader map[string]float64

func (h heightReader) GetContainer(_ context.Context, _ string, id string) (*domain.Container, error) {
	height, ok := h[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Container{ContainerID: id, Height: height}, nil
}

func TestImporter_UsesStoredHeightsAndWarns(t *testing.T) {
	mut := &recordingMutator{}
	im := daemon.NewImporter(mut, heightReader{"dir": 400}, nil)
	res := daemon.AddTargetsResult{Objects: []daemon.TargetObject{
		{Status: "success", TargetType: "directory", Data: raw(t, domain.Container{ContainerID: "dir", Height: 10})},
		{Status: "success", TargetType: "asset", Data: raw(t, asset("img", 150, 100))},
		{Status: "ambiguous", Data: raw(t, daemon.AmbiguousData{FileName: "dup.png", Paths: []string{"/one/dup.png", "/two/dup.png"}})},
		{Status: "error", ErrorType: "not_found", Target: daemon.DroppedFile{FileName: "gone.png"}},
	}}

	warnings, placements := im.Import(context.Background(), "c", daemon.AddTargetsRequest{DropX: 10, DropY: 20}, res)

	if len(mut.containers) != 1 || len(mut.previews) != 1 {
		t.Fatalf("instances created: containers=%v previews=%v", mut.containers, mut.previews)
	}
	if placements[1].Y != 420 {
		t.Errorf("asset y = %v, want stored height offset 420", placements[1].Y)
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %q", warnings)
	}
	if !strings.Contains(warnings[0], "dup.png") || !strings.Contains(warnings[0], "/two/dup.png") {
		t.Errorf("ambiguous warning missing names: %q", warnings[0])
	}
	if !strings.Contains(warnings[1], "gone.png") {
		t.Errorf("not-found warning missing name: %q", warnings[1])
	}
}
