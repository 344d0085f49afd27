package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("brainstorm",
		mcp.WithPromptDescription("Lay out a set of sticky notes about a topic next to the existing media"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the notes are about"),
			mcp.RequiredArgument(),
		),
	), s.handleBrainstormPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_canvas",
		mcp.WithPromptDescription("Rearrange overlapping instances into a readable grid"),
	), s.handleTidyPrompt)
}

func (s *Server) handleBrainstormPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Brainstorm notes for: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Brainstorm about "%s" on the open canvas. Follow these steps:

1. Read canvas://media (or call list_media) to see what is already placed
2. Create one note per idea with add_note, leaving x and y out so each lands in a free spot
3. Keep each note short: one idea, one or two sentences

Do not move or delete anything you did not create.`, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleTidyPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Tidy the canvas",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: `Tidy the open canvas:

1. Call list_media to get every instance with its position and scale
2. Work out a grid that keeps containers on the left and loose media and notes on the right
3. Use move_instance for each instance that overlaps another one

Never delete instances while tidying.`,
				},
			},
		},
	}, nil
}
