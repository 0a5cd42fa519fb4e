package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: "coverage_analyze",
			Description: "Measure the percentage of a UV frame covered by fluorescing particles. " +
				"Returns the coverage, mask and pixel counts, and the bounding boxes of detected regions. " +
				"Optionally returns or saves the annotated overlay image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Luminance threshold 0-255; pixels at or above it count as particle. Operating range 100-240. Default 200",
						"minimum":     0,
						"maximum":     255,
					},
					"kernel_size": map[string]interface{}{
						"type":        "integer",
						"description": "Odd Gaussian kernel size used before thresholding; 1 disables smoothing. Default 5",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the annotated image as base64 PNG. Default false",
						"default":     false,
					},
					"save_annotated": map[string]interface{}{
						"type":        "boolean",
						"description": "Write the annotated image next to the input as <name>_detected.<ext>. Default false",
						"default":     false,
					},
					"max_regions": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of regions listed in the result (default 100)",
						"default":     100,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "coverage_annotated_name",
			Description: "Derive the annotated image filename from an original frame filename, or the original from an annotated one.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Original or annotated image filename or path",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "coverage_history",
			Description: "List the most recent stored analysis results, newest first. Failed analyses have a null percentage.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Number of records to return (default 50, max 500)",
						"default":     50,
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
