package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	keysResourceURI    = "keygate://keys"
	keyResourcePrefix  = "keygate://keys/"
	keyResourceTmplURI = "keygate://keys/{id}"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// keygate://keys: every key, newest first
	srv.AddResource(
		mcp.NewResource(
			keysResourceURI,
			"API Keys",
			mcp.WithResourceDescription(
				"All API keys with their actions, indexes and expiration.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleKeysResource,
	)

	// keygate://keys/{id}: a single key
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			keyResourceTmplURI,
			"API Key",
			mcp.WithTemplateDescription("A single API key by id."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleKeyResource,
	)
}

// handleKeysResource returns a JSON list of all keys.
func (s *MCPServer) handleKeysResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	keys, _, err := s.keys.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return jsonResource(keysResourceURI, keys)
}

// handleKeyResource returns the key named by the URI.
func (s *MCPServer) handleKeyResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	id := strings.TrimPrefix(uri, keyResourcePrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid key resource URI %q", uri)
	}

	key, err := s.keys.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return jsonResource(uri, key)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
