package mcpserver

import (
	"context"
	"fmt"

	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/stage"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMediaTools() {
	s.mcp.AddTool(mcp.NewTool("list_media",
		mcp.WithDescription("List every placed instance on the open canvas with its position, scale and note text"),
		mcp.WithString("kind",
			mcp.Description("Only list this kind"),
			mcp.Enum(string(domain.KindPreview), string(domain.KindContainer)),
		),
	), s.handleListMedia)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a sticky note. Without x and y the note is placed in the first free spot"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
		mcp.WithNumber("x", mcp.Description("Canvas X")),
		mcp.WithNumber("y", mcp.Description("Canvas Y")),
		mcp.WithString("fontSize", mcp.Description("Font size token, e.g. 16px")),
	), s.handleAddNote)

	s.mcp.AddTool(mcp.NewTool("duplicate_instance",
		mcp.WithDescription("Place a copy of an instance 20 units right and below the original"),
		mcp.WithString("instanceId", mcp.Required(), mcp.Description("Instance to copy")),
		mcp.WithString("kind", mcp.Enum(string(domain.KindPreview), string(domain.KindContainer))),
	), s.handleDuplicateInstance)

	s.mcp.AddTool(mcp.NewTool("move_instance",
		mcp.WithDescription("Move an instance, optionally changing its scale"),
		mcp.WithString("instanceId", mcp.Required()),
		mcp.WithString("kind", mcp.Enum(string(domain.KindPreview), string(domain.KindContainer))),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Canvas X")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Canvas Y")),
		mcp.WithNumber("scale", mcp.Description("New scale, keeps the current one when omitted")),
	), s.handleMoveInstance)

	s.mcp.AddTool(mcp.NewTool("delete_instance",
		mcp.WithDescription("Remove an instance from the canvas. The media itself is kept"),
		mcp.WithString("instanceId", mcp.Required()),
		mcp.WithString("kind", mcp.Enum(string(domain.KindPreview), string(domain.KindContainer))),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteInstance)
}

// mediaSummary is the agent-facing view of one placed instance.
type mediaSummary struct {
	Kind        domain.MediaKind `json:"kind"`
	ItemID      string           `json:"itemId"`
	InstanceID  string           `json:"instanceId"`
	Name        string           `json:"name"`
	MimeType    string           `json:"mimeType,omitempty"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Scale       float64          `json:"scale"`
	Text        string           `json:"text,omitempty"`
	FontSize    string           `json:"fontSize,omitempty"`
	ContainerID string           `json:"containerId,omitempty"`
}

func summarize(e selection.Entry) mediaSummary {
	m := mediaSummary{
		Kind:       e.Kind,
		ItemID:     e.ItemID(),
		InstanceID: e.Instance.InstanceID,
		X:          e.Instance.X,
		Y:          e.Instance.Y,
		Scale:      e.Instance.Scale,
		Text:       e.Instance.Text,
		FontSize:   e.Instance.FontSize,
	}
	switch {
	case e.Preview != nil:
		m.Name = e.Preview.Name
		m.MimeType = e.Preview.MimeType
		m.ContainerID = e.Preview.ContainerID
	case e.Container != nil:
		m.Name = e.Container.Name
	}
	return m
}

func (s *Server) listMedia(kind domain.MediaKind) []mediaSummary {
	out := []mediaSummary{}
	for _, e := range s.sync.Snapshot().Placed() {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, summarize(e))
	}
	return out
}

// findEntry resolves the instanceId (and optional kind) arguments against
// the latest snapshot.
func (s *Server) findEntry(args map[string]any) (selection.Entry, error) {
	instanceID := getString(args, "instanceId")
	if instanceID == "" {
		return selection.Entry{}, fmt.Errorf("instanceId is required")
	}
	kind := domain.MediaKind(getString(args, "kind"))
	for _, e := range s.sync.Snapshot().Placed() {
		if e.Instance.InstanceID != instanceID {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		return e, nil
	}
	return selection.Entry{}, fmt.Errorf("instance %s not found on canvas %s", instanceID, s.sync.CanvasID())
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := domain.MediaKind(getString(req.GetArguments(), "kind"))
	return jsonResult(s.listMedia(kind))
}

func (s *Server) handleAddNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	text := getString(args, "text")
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	_, hasX := args["x"].(float64)
	_, hasY := args["y"].(float64)
	var x, y float64
	if hasX && hasY {
		x, y = getFloat(args, "x", 0), getFloat(args, "y", 0)
	} else {
		x, y = s.layout.NextPosition(s.sync.Snapshot().Placed(), NoteWidth, NoteHeight)
	}

	previewID, instanceID := s.sync.CreateNote(x, y, text, getString(args, "fontSize"))
	s.sync.Wait(ctx)
	s.emitMediaChanged(ctx, "add_note")
	s.log.Info("mcp note created", "previewId", previewID, "x", x, "y", y)

	return jsonResult(map[string]any{
		"previewId":  previewID,
		"instanceId": instanceID,
		"x":          x,
		"y":          y,
	})
}

func (s *Server) handleDuplicateInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, err := s.findEntry(req.GetArguments())
	if err != nil {
		return nil, err
	}

	in := e.Instance
	in.InstanceID = ""
	in.X += stage.DuplicateOffset
	in.Y += stage.DuplicateOffset

	var id string
	if e.Kind == domain.KindContainer {
		id = s.sync.AddContainerInstance(e.ItemID(), in)
	} else {
		id = s.sync.AddPreviewInstance(e.ItemID(), in)
	}
	s.sync.Wait(ctx)
	s.emitMediaChanged(ctx, "duplicate_instance")

	in.InstanceID = id
	return jsonResult(summarize(selection.Entry{
		Kind: e.Kind, Preview: e.Preview, Container: e.Container, Instance: in,
	}))
}

func (s *Server) handleMoveInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, err := s.findEntry(args)
	if err != nil {
		return nil, err
	}

	in := e.Instance
	in.X = getFloat(args, "x", in.X)
	in.Y = getFloat(args, "y", in.Y)
	in.Scale = getFloat(args, "scale", in.Scale)
	if in.Scale <= 0 {
		return nil, fmt.Errorf("scale must be positive")
	}

	if e.Kind == domain.KindContainer {
		s.sync.UpdateContainerInstance(e.ItemID(), in)
	} else {
		s.sync.UpdatePreviewInstance(e.ItemID(), in)
	}
	s.sync.Wait(ctx)
	s.emitMediaChanged(ctx, "move_instance")

	return textResult(fmt.Sprintf("Moved %s to (%.0f, %.0f)", in.InstanceID, in.X, in.Y)), nil
}

func (s *Server) handleDeleteInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, err := s.findEntry(req.GetArguments())
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Delete %s instance of %q", e.Kind, summarize(e).Name)
	if err := s.confirm("delete_instance", desc, e.Key()); err != nil {
		return nil, err
	}

	if e.Kind == domain.KindContainer {
		s.sync.DeleteContainerInstance(e.ItemID(), e.Instance.InstanceID)
	} else {
		s.sync.DeletePreviewInstance(e.ItemID(), e.Instance.InstanceID)
	}
	s.sync.Wait(ctx)
	s.emitMediaChanged(ctx, "delete_instance")

	return textResult(fmt.Sprintf("Deleted instance %s", e.Instance.InstanceID)), nil
}
