package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// MoleculeHandler exposes the molecule cache and resolver as MCP tools
type MoleculeHandler struct {
	store    *simplemolecule.ContentStore
	resolver *simplemolecule.Resolver
}

// NewMoleculeHandler creates a new instance of MoleculeHandler
func NewMoleculeHandler(store *simplemolecule.ContentStore, resolver *simplemolecule.Resolver) *MoleculeHandler {
	return &MoleculeHandler{store: store, resolver: resolver}
}

// RegisterTools registers the molecule tools with the MCP server
func (h *MoleculeHandler) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("molecule_status",
		mcp.WithDescription("Summarise this server's in-process molecule cache: record count, total bytes and one line per record. Records uploaded to other processes are not visible"),
	), h.handleStatus)

	s.AddTool(mcp.NewTool("molecule_get",
		mcp.WithDescription("Return one molecule from this server's in-process cache, including its content"),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("cache key, e.g. workflow_node_3")),
	), h.handleGet)

	s.AddTool(mcp.NewTool("molecule_search",
		mcp.WithDescription("Find cached molecules by filename, format or identifier"),
		mcp.WithString("query", mcp.Description("case-insensitive substring; empty lists everything")),
	), h.handleSearch)

	s.AddTool(mcp.NewTool("molecule_resolve",
		mcp.WithDescription("Resolve a filename or literal molecular text through this server's cache and the shared fallback tiers"),
		mcp.WithString("input", mcp.Required(), mcp.Description("filename or literal content")),
		mcp.WithString("identifier", mcp.Description("requesting identifier")),
		mcp.WithBoolean("skip_fallback", mcp.Description("do not read the fallback source")),
	), h.handleResolve)

	s.AddTool(mcp.NewTool("molecule_edit",
		mcp.WithDescription("Apply an edit to a cached molecule"),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("cache key of the record to edit")),
		mcp.WithString("edit_type", mcp.Description("edit to apply, default remove_last_atom")),
	), h.handleEdit)
}

func stringArg(request mcp.CallToolRequest, name string) string {
	if v, ok := request.GetArguments()[name]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolArg(request mcp.CallToolRequest, name string) bool {
	if v, ok := request.GetArguments()[name]; ok && v != nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *MoleculeHandler) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.store.Status())
}

func (h *MoleculeHandler) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := stringArg(request, "identifier")
	if identifier == "" {
		return mcp.NewToolResultError("identifier is required"), nil
	}

	rec, err := h.store.Get(ctx, identifier)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (h *MoleculeHandler) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.store.Search(stringArg(request, "query")))
}

func (h *MoleculeHandler) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := stringArg(request, "input")
	if input == "" {
		return mcp.NewToolResultError("input is required"), nil
	}

	res := h.resolver.Resolve(ctx, simplemolecule.ResolveRequest{
		Input:        input,
		Identifier:   stringArg(request, "identifier"),
		SkipFallback: boolArg(request, "skip_fallback"),
	})
	return jsonResult(res)
}

func (h *MoleculeHandler) handleEdit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := stringArg(request, "identifier")
	if identifier == "" {
		return mcp.NewToolResultError("identifier is required"), nil
	}
	editType := simplemolecule.EditType(stringArg(request, "edit_type"))
	if editType == "" {
		editType = simplemolecule.EditRemoveLastAtom
	}

	rec, err := h.store.Edit(ctx, identifier, simplemolecule.EditRequest{Type: editType})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}
