package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPTool binds an MCP tool definition to an Endpoint.
type MCPTool struct {
	Tool     *mcp.Tool
	Endpoint Endpoint

	// Decode turns the raw call arguments into the endpoint request. A nil
	// Decode passes a nil request.
	Decode func(args json.RawMessage) (any, error)
}

// Register adds the tool to srv. The endpoint runs with the transport set to
// TransportMCP and its response is returned as JSON text. Decode and
// endpoint failures become tool errors, not protocol errors, so the calling
// agent sees the message.
func (t MCPTool) Register(srv *mcp.Server) {
	endpoint := WithTransportTag(TransportMCP)(t.Endpoint)
	srv.AddTool(t.Tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req any
		if t.Decode != nil {
			v, err := t.Decode(call.Params.Arguments)
			if err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
			req = v
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("encode result: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	res := &mcp.CallToolResult{}
	res.SetError(err)
	return res
}
