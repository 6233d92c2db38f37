package chapterpipe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ebookimport/idgen"
	"github.com/hazyhaar/ebookimport/kit"
)

// RegisterMCP registers the import tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerParseTool(srv)
	p.registerFormatsTool(srv)
}

func (p *Pipeline) instrument(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.RequestID(idgen.For(idgen.Request)),
		kit.Logging(p.logger, name),
	)(e)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- parse ---

type parseReq struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Output      string `json:"output"` // "json" (default) or "markdown"
}

func (p *Pipeline) registerParseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ebookimport_parse",
		Description: "Split an ebook file (pdf, epub or plain text) into ordered draft chapters.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "File path to import"},
			"content_type": map[string]any{"type": "string", "description": "Declared MIME type (optional)"},
			"output":       map[string]any{"type": "string", "enum": []string{"json", "markdown"}, "description": "Result shape (default json)"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*parseReq)
		batch, err := p.ImportFile(ctx, r.Path, r.ContentType)
		if err != nil || r.Output != "markdown" {
			return batch, err
		}
		md, err := p.Markdown(batch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"markdown": md, "chapters": batch.Len(), "degraded": batch.Degraded}, nil
	}

	kit.MCPTool{
		Tool:     tool,
		Endpoint: p.instrument(tool.Name, endpoint),
		Decode: func(args json.RawMessage) (any, error) {
			var r parseReq
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, err
			}
			if r.Path == "" {
				return nil, ErrMissingInput
			}
			switch r.Output {
			case "", "json", "markdown":
			default:
				return nil, fmt.Errorf("unsupported output %q", r.Output)
			}
			return &r, nil
		},
	}.Register(srv)
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ebookimport_formats",
		Description: "List the document formats with a dedicated import strategy.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	kit.MCPTool{Tool: tool, Endpoint: endpoint}.Register(srv)
}
