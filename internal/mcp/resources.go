package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const mediaResourceURI = "canvas://media"

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		mediaResourceURI,
		"Placed media",
		mcp.WithResourceDescription("Every instance on the open canvas"),
		mcp.WithMIMEType("application/json"),
	), s.handleMediaResource)
}

func (s *Server) handleMediaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(s.listMedia(""), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      mediaResourceURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
