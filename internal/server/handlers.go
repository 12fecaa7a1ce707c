package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/imaging"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// toolTimeout bounds a single classifier call made by digit_predict.
const toolTimeout = 30 * time.Second

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "digit_normalize").
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
// Undecodable images return code -32602; every other tool failure returns
// code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		if imaging.IsDecodeError(err) {
			log.Info().Str("component", "MCP_SERVER").Str("tool", params.Name).Err(err).Msg("rejected undecodable image")
			return s.errorResponse(req.ID, -32602, "Invalid image", err.Error())
		}
		log.Warn().Str("component", "MCP_SERVER").Str("tool", params.Name).Err(err).Msg("tool failed")
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
	case "digit_load":
		return s.handleDigitLoad(args)
	case "digit_normalize":
		return s.handleDigitNormalize(args)
	case "digit_predict":
		return s.handleDigitPredict(args)
	case "digit_model_info":
		return s.handleDigitModelInfo(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Source Handlers ===

type digitLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleDigitLoad(args json.RawMessage) (interface{}, error) {
	var a digitLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	return imaging.LoadSourceInfo(s.cache, a.Path)
}

// imageArgs names a capture either inline or on disk.
type imageArgs struct {
	ImageBase64 string `json:"image_base64"`
	Path        string `json:"path"`
}

// normalize runs the pipeline on whichever source a names. Files go through
// the cache; inline payloads are decoded on every call.
func (s *Server) normalize(a imageArgs) (*pipeline.Result, error) {
	var (
		res *pipeline.Result
		err error
	)
	switch {
	case a.ImageBase64 != "" && a.Path != "":
		return nil, errors.New("provide either image_base64 or path, not both")
	case a.ImageBase64 != "":
		res, err = s.normalizer.Normalize(a.ImageBase64)
	case a.Path != "":
		var src *image.Gray
		src, err = s.cache.Load(a.Path)
		if err == nil {
			res = s.normalizer.NormalizeImage(src)
		}
	default:
		return nil, errors.New("image_base64 or path is required")
	}
	if err != nil {
		return nil, err
	}

	if !res.DarkOnLight {
		log.Warn().Str("component", "MCP_SERVER").
			Float64("border_lightness", res.BorderLightness).
			Msg("capture looks light-on-dark; inversion will produce a dark digit")
	}
	return res, nil
}

// === Normalization Handlers ===

type digitNormalizeArgs struct {
	imageArgs
	IncludeTensor bool `json:"include_tensor"`
}

// NormalizeReport is the digit_normalize result.
type NormalizeReport struct {
	*pipeline.Result

	CanvasImage *imaging.EncodedImage `json:"canvas"`
	TensorShape []int                 `json:"tensor_shape"`
	TensorMean  float64               `json:"tensor_mean"`
	Tensor      []float32             `json:"tensor,omitempty"`
}

func (s *Server) handleDigitNormalize(args json.RawMessage) (interface{}, error) {
	var a digitNormalizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	res, err := s.normalize(a.imageArgs)
	if err != nil {
		return nil, err
	}

	canvas, err := imaging.EncodePNG(res.Canvas)
	if err != nil {
		return nil, err
	}

	report := &NormalizeReport{
		Result:      res,
		CanvasImage: canvas,
		TensorShape: res.Tensor.Shape(),
		TensorMean:  res.Tensor.Mean(),
	}
	if a.IncludeTensor {
		report.Tensor = res.Tensor.Flatten()
	}
	return report, nil
}

// === Classification Handlers ===

// PredictReport is the digit_predict result.
type PredictReport struct {
	*classify.Prediction

	Found    bool `json:"found"`
	Repaired bool `json:"repaired"`
}

func (s *Server) handleDigitPredict(args json.RawMessage) (interface{}, error) {
	var a imageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.classifier == nil {
		return nil, classify.ErrNoModel
	}

	res, err := s.normalize(a)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	pred, err := s.classifier.Classify(ctx, res.Tensor)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	return &PredictReport{
		Prediction: pred,
		Found:      res.Found,
		Repaired:   res.Repaired,
	}, nil
}

func (s *Server) handleDigitModelInfo(_ json.RawMessage) (interface{}, error) {
	if s.classifier == nil {
		return nil, classify.ErrNoModel
	}
	return s.classifier.Info(), nil
}
