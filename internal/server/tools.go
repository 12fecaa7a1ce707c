package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// imageSourceProperties are shared by every tool that takes a capture.
func imageSourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"image_base64": map[string]interface{}{
			"type":        "string",
			"description": "Encoded capture: base64, optionally as a data URL (data:image/png;base64,...). Mutually exclusive with path.",
		},
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the capture file. Mutually exclusive with image_base64.",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	normalizeProps := imageSourceProperties()
	normalizeProps["include_tensor"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Include the 784 tensor values, row-major. Default false",
		"default":     false,
	}

	return []Tool{
		{
			Name:        "digit_load",
			Description: "Load a capture file and return its dimensions, format and border lightness. The decoded image is cached for later digit_normalize and digit_predict calls on the same path.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the capture file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "digit_normalize",
			Description: "Normalize a hand-drawn digit into the 28x28 white-on-black classifier format. Returns the canvas as base64 PNG, the located region, and whether the fallback or crop repair was used.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": normalizeProps,
			},
		},
		{
			Name:        "digit_predict",
			Description: "Normalize a hand-drawn digit and classify it. Returns the predicted digit, its confidence and all ten class probabilities.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": imageSourceProperties(),
			},
		},
		{
			Name:        "digit_model_info",
			Description: "Describe the classifier backend: input and output shapes and endpoint.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
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
