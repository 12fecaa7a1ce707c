package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/imaging"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// fakeClassifier always predicts the same digit
type fakeClassifier struct {
	digit int
	err   error
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, _ *imaging.Tensor) (*classify.Prediction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	scores := make([]float64, classify.NumClasses)
	scores[f.digit] = 1
	return classify.FromDistribution(scores)
}

func (f *fakeClassifier) Info() classify.ModelInfo {
	return classify.ModelInfo{
		Backend:     "fake",
		InputShape:  classify.DefaultInputShape(),
		OutputShape: classify.DefaultOutputShape(),
	}
}

// captureImage creates a white capture with a dark vertical stroke
func captureImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := height / 4; y < 3*height/4; y++ {
		for x := width/2 - 2; x < width/2+2; x++ {
			img.Pix[y*img.Stride+x] = 0
		}
	}
	return img
}

// createCaptureFile writes captureImage to a temp PNG and returns its path
func createCaptureFile(t *testing.T, width, height int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, captureImage(width, height)); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func captureBase64(t *testing.T, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, captureImage(width, height)); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// callTool sends a tools/call request through the full request router
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	paramsJSON, _ := json.Marshal(map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeContent unmarshals the text content of a successful tool response
func decodeContent(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Fatalf("content type: got %v, want text", content[0]["type"])
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
}

func TestHandleToolsCall_DigitLoad(t *testing.T) {
	s := New(nil, nil)
	path := createCaptureFile(t, 120, 80)

	var info imaging.SourceInfo
	decodeContent(t, callTool(t, s, "digit_load", map[string]interface{}{"path": path}), &info)

	if info.Width != 120 || info.Height != 80 {
		t.Errorf("size: got %dx%d, want 120x80", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format: got %q, want png", info.Format)
	}
	if !info.DarkOnLight {
		t.Error("white capture should be reported dark-on-light")
	}
	if s.cache.Len() != 1 {
		t.Errorf("cache: got %d entries, want 1", s.cache.Len())
	}
}

func TestHandleToolsCall_DigitNormalize(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) map[string]interface{}
	}{
		{"path", func(t *testing.T) map[string]interface{} {
			return map[string]interface{}{"path": createCaptureFile(t, 100, 100)}
		}},
		{"inline", func(t *testing.T) map[string]interface{} {
			return map[string]interface{}{"image_base64": captureBase64(t, 100, 100), "include_tensor": true}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, nil)
			args := tt.args(t)

			var report struct {
				Found       bool                 `json:"found"`
				Repaired    bool                 `json:"repaired"`
				Region      map[string]int       `json:"region"`
				Canvas      imaging.EncodedImage `json:"canvas"`
				TensorShape []int                `json:"tensor_shape"`
				TensorMean  float64              `json:"tensor_mean"`
				Tensor      []float32            `json:"tensor"`
			}
			decodeContent(t, callTool(t, s, "digit_normalize", args), &report)

			if !report.Found {
				t.Error("stroke should be located")
			}
			if report.Canvas.Width != 28 || report.Canvas.Height != 28 {
				t.Errorf("canvas: got %dx%d, want 28x28", report.Canvas.Width, report.Canvas.Height)
			}
			if len(report.TensorShape) != 4 || report.TensorShape[1] != 28 {
				t.Errorf("tensor shape: got %v", report.TensorShape)
			}
			if report.TensorMean <= 0 {
				t.Error("canvas should have lit pixels")
			}
			if report.Region["width"] == 0 || report.Region["height"] == 0 {
				t.Errorf("region: got %v", report.Region)
			}

			_, inline := args["include_tensor"]
			if inline && len(report.Tensor) != 784 {
				t.Errorf("tensor: got %d values, want 784", len(report.Tensor))
			}
			if !inline && report.Tensor != nil {
				t.Error("tensor should be omitted unless requested")
			}

			pngData, err := base64.StdEncoding.DecodeString(report.Canvas.ImageBase64)
			if err != nil {
				t.Fatalf("canvas is not base64: %v", err)
			}
			if _, err := png.Decode(bytes.NewReader(pngData)); err != nil {
				t.Errorf("canvas is not a PNG: %v", err)
			}
		})
	}
}

func TestHandleToolsCall_DigitNormalizeCapturesCanvas(t *testing.T) {
	var captured atomic.Int32
	norm := pipeline.New(pipeline.WithSink(pipeline.SinkFunc(func(*image.Gray) {
		captured.Add(1)
	})))
	s := New(norm, nil)

	resp := callTool(t, s, "digit_normalize", map[string]interface{}{"image_base64": captureBase64(t, 50, 50)})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if captured.Load() != 1 {
		t.Errorf("sink captures: got %d, want 1", captured.Load())
	}
}

func TestHandleToolsCall_DigitPredict(t *testing.T) {
	clf := &fakeClassifier{digit: 7}
	s := New(nil, clf)

	var report struct {
		Prediction    int                `json:"prediction"`
		Confidence    float64            `json:"confidence"`
		Probabilities map[string]float64 `json:"probabilities"`
		Found         bool               `json:"found"`
	}
	args := map[string]interface{}{"path": createCaptureFile(t, 64, 64)}
	decodeContent(t, callTool(t, s, "digit_predict", args), &report)

	if report.Prediction != 7 || report.Confidence != 1 {
		t.Errorf("prediction: got %d (%v), want 7 (1)", report.Prediction, report.Confidence)
	}
	if len(report.Probabilities) != 10 {
		t.Errorf("probabilities: got %d classes, want 10", len(report.Probabilities))
	}
	if !report.Found {
		t.Error("stroke should be located")
	}
	if clf.calls.Load() != 1 {
		t.Errorf("classifier calls: got %d, want 1", clf.calls.Load())
	}
}

func TestHandleToolsCall_DigitPredictClassifierFailure(t *testing.T) {
	s := New(nil, &fakeClassifier{err: errors.New("backend down")})

	resp := callTool(t, s, "digit_predict", map[string]interface{}{"image_base64": captureBase64(t, 40, 40)})
	if resp.Error == nil {
		t.Fatal("expected an error")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
}

func TestHandleToolsCall_NoModel(t *testing.T) {
	s := New(nil, nil)

	for _, name := range []string{"digit_predict", "digit_model_info"} {
		t.Run(name, func(t *testing.T) {
			resp := callTool(t, s, name, map[string]interface{}{"image_base64": captureBase64(t, 40, 40)})
			if resp.Error == nil {
				t.Fatal("expected an error without a classifier")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
			}
			if resp.Error.Data != classify.ErrNoModel.Error() {
				t.Errorf("Error data: got %v", resp.Error.Data)
			}
		})
	}
}

func TestHandleToolsCall_DigitModelInfo(t *testing.T) {
	s := New(nil, &fakeClassifier{})

	var info classify.ModelInfo
	decodeContent(t, callTool(t, s, "digit_model_info", nil), &info)

	if info.Backend != "fake" {
		t.Errorf("backend: got %q, want fake", info.Backend)
	}
	if len(info.InputShape) != 4 || len(info.OutputShape) != 2 {
		t.Errorf("shapes: got %v / %v", info.InputShape, info.OutputShape)
	}
}

func TestHandleToolsCall_InvalidImage(t *testing.T) {
	s := New(nil, &fakeClassifier{})

	for _, name := range []string{"digit_normalize", "digit_predict"} {
		t.Run(name, func(t *testing.T) {
			resp := callTool(t, s, name, map[string]interface{}{"image_base64": "not-an-image"})
			if resp.Error == nil {
				t.Fatal("expected an error")
			}
			if resp.Error.Code != -32602 || resp.Error.Message != "Invalid image" {
				t.Errorf("error: got %d %q, want -32602 Invalid image", resp.Error.Code, resp.Error.Message)
			}
		})
	}
}

func TestHandleToolsCall_ArgumentErrors(t *testing.T) {
	s := New(nil, &fakeClassifier{})
	path := createCaptureFile(t, 30, 30)

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"load without path", "digit_load", map[string]interface{}{}},
		{"load missing file", "digit_load", map[string]interface{}{"path": "/nonexistent/capture.png"}},
		{"normalize without source", "digit_normalize", map[string]interface{}{}},
		{"normalize with both sources", "digit_normalize", map[string]interface{}{"path": path, "image_base64": captureBase64(t, 30, 30)}},
		{"predict missing file", "digit_predict", map[string]interface{}{"path": "/nonexistent/capture.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, tt.tool, tt.args)
			if resp.Error == nil {
				t.Fatal("expected an error")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(nil, nil)

	resp := s.handleToolsCall(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  json.RawMessage(`{invalid`),
	})

	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602 Invalid params, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_UndecodableFile(t *testing.T) {
	s := New(nil, nil)
	path := filepath.Join(t.TempDir(), "capture.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	resp := callTool(t, s, "digit_normalize", map[string]interface{}{"path": path})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602 Invalid image, got %+v", resp.Error)
	}
}

func TestExecuteTool_AllTools(t *testing.T) {
	s := New(nil, &fakeClassifier{digit: 3})
	path := createCaptureFile(t, 60, 60)

	toolTests := []struct {
		name string
		args map[string]interface{}
	}{
		{"digit_load", map[string]interface{}{"path": path}},
		{"digit_normalize", map[string]interface{}{"path": path}},
		{"digit_predict", map[string]interface{}{"path": path}},
		{"digit_model_info", map[string]interface{}{}},
	}

	for _, tt := range toolTests {
		t.Run(tt.name, func(t *testing.T) {
			argsJSON, _ := json.Marshal(tt.args)
			result, err := s.executeTool(tt.name, argsJSON)
			if err != nil {
				t.Fatalf("executeTool(%s) failed: %v", tt.name, err)
			}
			if result == nil {
				t.Errorf("executeTool(%s) returned nil result", tt.name)
			}
		})
	}

	if s.cache.Len() != 1 {
		t.Errorf("every path-based tool should share one cache entry, got %d", s.cache.Len())
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := New(nil, nil)

	_, err := s.executeTool("unknown_tool", json.RawMessage(`{}`))
	if err == nil {
		t.Error("executeTool should fail for unknown tool")
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New(nil, nil)

	_, err := s.executeTool("digit_load", json.RawMessage(`{invalid`))
	if err == nil {
		t.Error("executeTool should fail for invalid JSON")
	}
}
