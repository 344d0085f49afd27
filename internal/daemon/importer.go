package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"canvas/internal/domain"
)

// Import grid geometry.
const (
	GridColumns    = 4
	GridColumnStep = 160.0
	GridGutter     = 20.0
)

// Partition groups the outcome of a bulk import.
type Partition struct {
	Directories []domain.Container
	Assets      []domain.Preview
	Ambiguous   []AmbiguousData
	NotFound    []DroppedFile
	Failed      []DroppedFile
}

// PartitionObjects sorts result objects by status and target type,
// keeping arrival order within each group. Objects whose payload cannot
// be decoded count as failed.
func PartitionObjects(objects []TargetObject) Partition {
	var p Partition
	for _, obj := range objects {
		switch obj.Status {
		case StatusSuccess:
			switch obj.TargetType {
			case TargetDirectory:
				var c domain.Container
				if err := json.Unmarshal(obj.Data, &c); err != nil || c.ContainerID == "" {
					p.Failed = append(p.Failed, obj.Target)
					continue
				}
				p.Directories = append(p.Directories, c)
			case TargetAsset:
				var pv domain.Preview
				if err := json.Unmarshal(obj.Data, &pv); err != nil || pv.PreviewID == "" {
					p.Failed = append(p.Failed, obj.Target)
					continue
				}
				p.Assets = append(p.Assets, pv)
			default:
				p.Failed = append(p.Failed, obj.Target)
			}
		case StatusAmbiguous:
			var a AmbiguousData
			if err := json.Unmarshal(obj.Data, &a); err != nil || a.FileName == "" {
				a.FileName = obj.Target.FileName
			}
			p.Ambiguous = append(p.Ambiguous, a)
		default:
			if obj.ErrorType == ErrorNotFound {
				p.NotFound = append(p.NotFound, obj.Target)
			} else {
				p.Failed = append(p.Failed, obj.Target)
			}
		}
	}
	return p
}

// Placement is where one imported object lands, in canvas space.
type Placement struct {
	Kind  domain.MediaKind
	ID    string
	X     float64
	Y     float64
	Scale float64
}

// Layout places directories in a vertical stack at the drop point, each
// one offset by the stored height of the previous, followed by assets in
// a GridColumns-wide grid below the stack. Assets fill the columns
// cyclically in arrival order and every column keeps its own vertical
// cursor. heights[i] is the stored height of directories[i].
func Layout(dropX, dropY float64, directories []domain.Container, heights []float64, assets []domain.Preview) []Placement {
	out := make([]Placement, 0, len(directories)+len(assets))
	x, y := dropX, dropY
	for i, c := range directories {
		out = append(out, Placement{Kind: domain.KindContainer, ID: c.ContainerID, X: x, Y: y, Scale: 1})
		if i < len(heights) {
			y += heights[i]
		}
	}

	var cursors [GridColumns]float64
	for i := range cursors {
		cursors[i] = y
	}
	col := 0
	for i := range assets {
		a := &assets[i]
		scale := a.Scale()
		out = append(out, Placement{Kind: domain.KindPreview, ID: a.PreviewID, X: x, Y: y, Scale: scale})
		cursors[col] += a.Dimensions[1]*scale + GridGutter
		col++
		if col == GridColumns {
			col = 0
			x = dropX
		} else {
			x += GridColumnStep
		}
		y = cursors[col]
	}
	return out
}

// Mutator creates the instances of an import.
type Mutator interface {
	AddPreviewInstance(previewID string, in domain.Instance) string
	AddContainerInstance(containerID string, in domain.Instance) string
}

// ContainerReader reads a container's stored height.
type ContainerReader interface {
	GetContainer(ctx context.Context, canvasID, containerID string) (*domain.Container, error)
}

// Importer turns an add_sync_targets result into instances.
type Importer struct {
	mut        Mutator
	containers ContainerReader
	log        *slog.Logger
}

func NewImporter(mut Mutator, containers ContainerReader, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{mut: mut, containers: containers, log: logger}
}

// Import creates the instances for every successful object and returns one
// warning per failure category that occurred.
func (im *Importer) Import(ctx context.Context, canvasID string, req AddTargetsRequest, res AddTargetsResult) ([]string, []Placement) {
	part := PartitionObjects(res.Objects)

	heights := make([]float64, len(part.Directories))
	for i, c := range part.Directories {
		stored, err := im.containers.GetContainer(ctx, canvasID, c.ContainerID)
		if err != nil {
			im.log.Warn("read imported container height", "containerId", c.ContainerID, "err", err)
			heights[i] = c.Height
			continue
		}
		heights[i] = stored.Height
	}

	placements := Layout(req.DropX, req.DropY, part.Directories, heights, part.Assets)
	for _, pl := range placements {
		in := domain.Instance{X: pl.X, Y: pl.Y, Scale: pl.Scale}
		if pl.Kind == domain.KindContainer {
			im.mut.AddContainerInstance(pl.ID, in)
		} else {
			im.mut.AddPreviewInstance(pl.ID, in)
		}
	}
	im.log.Info("import applied", "directories", len(part.Directories), "assets", len(part.Assets),
		"ambiguous", len(part.Ambiguous), "notFound", len(part.NotFound), "failed", len(part.Failed))
	return warnings(part), placements
}

func warnings(p Partition) []string {
	var out []string
	if len(p.Ambiguous) > 0 {
		var b strings.Builder
		b.WriteString("Some items were not added because their paths are ambiguous:\n")
		for _, a := range p.Ambiguous {
			fmt.Fprintf(&b, "\n%s:\n    %s", a.FileName, strings.Join(a.Paths, "\n    "))
		}
		out = append(out, b.String())
	}
	if len(p.NotFound) > 0 {
		out = append(out, "Some files and directories could not be found. "+
			"Make sure the companion app has full disk access. Could not locate:\n"+fileNames(p.NotFound))
	}
	if len(p.Failed) > 0 {
		out = append(out, "An error was encountered when adding the following files. "+
			"Try again and contact support if the problem persists:\n"+fileNames(p.Failed))
	}
	return out
}

func fileNames(files []DroppedFile) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "\n%s", f.FileName)
	}
	return b.String()
}
