package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/keygate/internal/apikey"
	"github.com/faucetdb/keygate/internal/config"
	"github.com/faucetdb/keygate/internal/model"
)

const expiresAtHelp = "Expiration as RFC 3339 (\"2030-01-01T00:00:00Z\"), \"YYYY-MM-DDTHH:MM:SS\", " +
	"\"YYYY-MM-DD HH:MM:SS\" or \"YYYY-MM-DD\". Zone-less values are UTC. Must be in the future. " +
	"Pass null for a key that never expires."

// registerTools registers all keygate MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("keygate_list_actions",
			mcp.WithDescription(
				"List every action name an API key can be granted. \"*\" grants all of them. "+
					"Use this before creating a key to pick valid actions.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListActions,
	)

	srv.AddTool(
		mcp.NewTool("keygate_list_keys",
			mcp.WithDescription(
				"List API keys, newest first, with their actions, indexes and expiration.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of keys to return (default 20, max 1000)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of keys to skip for pagination"),
			),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("keygate_get_key",
			mcp.WithDescription("Get a single API key by its 64 character id."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The key id"),
			),
		),
		s.handleGetKey,
	)

	// ----- Mutation tools -----

	srv.AddTool(
		mcp.NewTool("keygate_create_key",
			mcp.WithDescription(
				"Create an API key. actions, indexes and expiresAt are required. "+
					"Returns the new key including its id, which is the credential.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString(apikey.FieldDescription,
				mcp.Description("Human readable description"),
			),
			mcp.WithArray(apikey.FieldActions,
				mcp.Required(),
				mcp.Description("Actions the key may perform (see keygate_list_actions)"),
				mcp.WithStringItems(),
			),
			mcp.WithArray(apikey.FieldIndexes,
				mcp.Required(),
				mcp.Description("Index names the key may access; \"*\" matches every index"),
				mcp.WithStringItems(),
			),
			mcp.WithString(apikey.FieldExpiresAt,
				mcp.Required(),
				mcp.Description(expiresAtHelp),
			),
		),
		s.handleCreateKey,
	)

	srv.AddTool(
		mcp.NewTool("keygate_update_key",
			mcp.WithDescription(
				"Update an API key. Only the fields you pass are changed; pass null to "+
					"clear description or expiresAt. If any field is invalid nothing is changed.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The key id"),
			),
			mcp.WithString(apikey.FieldDescription,
				mcp.Description("New description, or null to clear it"),
			),
			mcp.WithArray(apikey.FieldActions,
				mcp.Description("Replacement list of actions"),
				mcp.WithStringItems(),
			),
			mcp.WithArray(apikey.FieldIndexes,
				mcp.Description("Replacement list of index names"),
				mcp.WithStringItems(),
			),
			mcp.WithString(apikey.FieldExpiresAt,
				mcp.Description(expiresAtHelp),
			),
		),
		s.handleUpdateKey,
	)

	srv.AddTool(
		mcp.NewTool("keygate_delete_key",
			mcp.WithDescription("Delete an API key. Requests using it are rejected immediately."),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The key id"),
			),
		),
		s.handleDeleteKey,
	)
}

// handleListActions returns the closed set of grantable actions.
func (s *MCPServer) handleListActions(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(model.AllActions())
}

// handleListKeys returns a page of keys with pagination metadata.
func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 20), 1, 1000)
	offset := optionalInt(request, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	keys, total, err := s.keys.List(ctx, limit, offset)
	if err != nil {
		return toolError("Failed to list keys: %v", err)
	}

	return successJSON(model.KeyListResponse{
		Resource: keys,
		Meta: model.ResponseMeta{
			Count:  len(keys),
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// handleGetKey returns a single key.
func (s *MCPServer) handleGetKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	key, err := s.keys.Get(ctx, id)
	if err != nil {
		return keyToolError(err)
	}
	return successJSON(key)
}

// handleCreateKey passes the tool arguments through to the key builder.
func (s *MCPServer) handleCreateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := s.keys.Create(ctx, keyInput(request))
	if err != nil {
		return keyToolError(err)
	}
	s.logger.Info("api key created via MCP", "actions", key.Actions, "indexes", key.Indexes)
	return successJSON(key)
}

// handleUpdateKey applies the supplied fields to an existing key.
func (s *MCPServer) handleUpdateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	key, err := s.keys.Update(ctx, id, keyInput(request))
	if err != nil {
		return keyToolError(err)
	}
	return successJSON(key)
}

// handleDeleteKey removes a key.
func (s *MCPServer) handleDeleteKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	if err := s.keys.Delete(ctx, id); err != nil {
		return keyToolError(err)
	}
	s.logger.Info("api key deleted via MCP")
	return successJSON(map[string]interface{}{"deleted": id})
}

// keyToolError reports validation and lookup failures in a form the model
// can act on.
func keyToolError(err error) (*mcp.CallToolResult, error) {
	if kerr, ok := apikey.AsError(err); ok {
		return toolError("%s (%s)", kerr.Error(), kerr.Code)
	}
	if errors.Is(err, config.ErrNotFound) {
		return toolError("API key not found")
	}
	return toolError("Key operation failed: %v", err)
}
