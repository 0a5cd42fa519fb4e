package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
	"github.com/ironsheep/uv-coverage/internal/detection"
	"github.com/ironsheep/uv-coverage/internal/imaging"
	"github.com/ironsheep/uv-coverage/internal/ingest"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// defaultMaxRegions caps the regions listed by coverage_analyze.
const defaultMaxRegions = 100

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "coverage_analyze").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "coverage_analyze":
		return s.handleCoverageAnalyze(args)
	case "coverage_annotated_name":
		return s.handleAnnotatedName(args)
	case "coverage_history":
		return s.handleHistory(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	mcpErr := &MCPError{
		Code:    code,
		Message: message,
	}
	if data != "" {
		mcpErr.Data = data
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   mcpErr,
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// RegionSummary describes one detected region without its outline.
type RegionSummary struct {
	Bounds     detection.Bounds `json:"bounds"`
	PixelCount int              `json:"pixel_count"`
	Vertices   int              `json:"vertices"`
}

// AnalyzeResult is the coverage_analyze response.
type AnalyzeResult struct {
	Path             string                `json:"path"`
	Width            int                   `json:"width"`
	Height           int                   `json:"height"`
	Coverage         float64               `json:"coverage_percentage"`
	Label            string                `json:"label"`
	MaskCount        int                   `json:"mask_count"`
	TotalPixels      int                   `json:"total_pixels"`
	Threshold        int                   `json:"threshold"`
	KernelSize       int                   `json:"kernel_size"`
	RegionCount      int                   `json:"region_count"`
	Regions          []RegionSummary       `json:"regions"`
	RegionsTruncated bool                  `json:"regions_truncated,omitempty"`
	Warnings         []string              `json:"warnings,omitempty"`
	AnnotatedPath    string                `json:"annotated_path,omitempty"`
	AnnotatedImage   *imaging.EncodedImage `json:"annotated_image,omitempty"`
}

func (s *Server) handleCoverageAnalyze(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path          string `json:"path"`
		Threshold     *int   `json:"threshold"`
		KernelSize    *int   `json:"kernel_size"`
		IncludeImage  bool   `json:"include_image"`
		SaveAnnotated bool   `json:"save_annotated"`
		MaxRegions    int    `json:"max_regions"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if p.MaxRegions <= 0 {
		p.MaxRegions = defaultMaxRegions
	}

	opts := s.opts
	if p.Threshold != nil {
		opts.Threshold = *p.Threshold
	}
	if p.KernelSize != nil {
		opts.KernelSize = *p.KernelSize
	}

	result, err := analyzer.AnalyzeFile(p.Path, opts)
	if err != nil {
		return nil, err
	}

	out := &AnalyzeResult{
		Path:        p.Path,
		Width:       result.Annotated.Bounds().Dx(),
		Height:      result.Annotated.Bounds().Dy(),
		Coverage:    result.Coverage,
		Label:       result.Label(opts.LabelPrefix),
		MaskCount:   result.MaskCount,
		TotalPixels: result.TotalPixels,
		Threshold:   result.Threshold,
		KernelSize:  opts.KernelSize,
		RegionCount: len(result.Regions),
		Regions:     make([]RegionSummary, 0, min(len(result.Regions), p.MaxRegions)),
		Warnings:    opts.Warnings(),
	}
	for i, r := range result.Regions {
		if i == p.MaxRegions {
			out.RegionsTruncated = true
			break
		}
		out.Regions = append(out.Regions, RegionSummary{
			Bounds:     r.Bounds,
			PixelCount: r.PixelCount,
			Vertices:   len(r.Outline),
		})
	}

	if p.SaveAnnotated {
		annotated := analyzer.AnnotatedName(p.Path)
		if err := imaging.Save(result.Annotated, annotated); err != nil {
			return nil, err
		}
		out.AnnotatedPath = annotated
	}

	if p.IncludeImage {
		encoded, err := imaging.EncodePNGBase64(result.Annotated)
		if err != nil {
			return nil, err
		}
		out.AnnotatedImage = encoded
	}

	return out, nil
}

func (s *Server) handleAnnotatedName(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	if original, ok := analyzer.OriginalName(p.Path); ok {
		return map[string]interface{}{
			"path":          p.Path,
			"is_annotated":  true,
			"original":      original,
			"original_base": filepath.Base(original),
		}, nil
	}

	annotated := analyzer.AnnotatedName(p.Path)
	return map[string]interface{}{
		"path":           p.Path,
		"is_annotated":   false,
		"annotated":      annotated,
		"annotated_base": filepath.Base(annotated),
	}, nil
}

func (s *Server) handleHistory(args json.RawMessage) (interface{}, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, err
		}
	}
	if s.history == nil {
		return nil, fmt.Errorf("no result database configured")
	}

	recs, err := s.history.Recent(context.Background(), ingest.ClampLimit(p.Limit))
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return map[string]interface{}{
		"count":   len(recs),
		"records": recs,
	}, nil
}
