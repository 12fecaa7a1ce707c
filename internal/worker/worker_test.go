package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/couchbaselabs/go.assert"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/imaging"
)

type stubClassifier struct {
	digit    int
	err      error
	deadline bool
}

func (s *stubClassifier) Classify(ctx context.Context, _ *imaging.Tensor) (*classify.Prediction, error) {
	_, s.deadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	scores := make([]float64, classify.NumClasses)
	scores[s.digit] = 0.8
	scores[(s.digit+1)%classify.NumClasses] = 0.2
	return classify.FromDistribution(scores)
}

func (s *stubClassifier) Info() classify.ModelInfo {
	return classify.ModelInfo{Backend: "stub"}
}

func requestBody(t *testing.T, image string) []byte {
	t.Helper()
	body, err := json.Marshal(Request{Image: image, RequestID: "req-1"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

// strokePayload encodes a white capture with one dark stroke
func strokePayload(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 60, 60))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 15; y < 45; y++ {
		for x := 28; x < 32; x++ {
			img.Pix[y*img.Stride+x] = 0
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestNew(t *testing.T) {
	w := New(config.Default().AMQP, nil, nil, time.Second)
	assert.True(t, w.normalizer != nil)
	assert.True(t, w.Tag() != "")
	assert.True(t, New(config.Default().AMQP, nil, nil, 0).Tag() != w.Tag())
	assert.True(t, w.Shutdown() != nil)
}

func TestHandle_Prediction(t *testing.T) {
	clf := &stubClassifier{digit: 4}
	w := New(config.Default().AMQP, nil, clf, time.Second)

	reply := w.Handle(context.Background(), requestBody(t, strokePayload(t)))
	assert.Equals(t, reply.Error, "")
	assert.Equals(t, reply.RequestID, "req-1")
	assert.True(t, reply.Prediction != nil)
	assert.Equals(t, reply.Digit, 4)
	assert.Equals(t, reply.Confidence, 0.8)
	assert.True(t, reply.Found)
	assert.True(t, clf.deadline)
}

func TestHandle_ReplyJSON(t *testing.T) {
	w := New(config.Default().AMQP, nil, &stubClassifier{digit: 9}, 0)

	body, err := json.Marshal(w.Handle(context.Background(), requestBody(t, strokePayload(t))))
	assert.True(t, err == nil)

	var decoded map[string]interface{}
	assert.True(t, json.Unmarshal(body, &decoded) == nil)
	assert.Equals(t, decoded["prediction"], float64(9))
	assert.Equals(t, decoded["request_id"], "req-1")
	_, hasError := decoded["error"]
	assert.True(t, !hasError)
	_, hasProbs := decoded["probabilities"]
	assert.True(t, hasProbs)
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		clf     classify.Classifier
		body    []byte
		wantErr string
	}{
		{"bad json", &stubClassifier{}, []byte("{"), ""},
		{"no image", &stubClassifier{}, []byte(`{"request_id":"req-1"}`), "No image data provided"},
		{"no model", nil, []byte(`{"image":"aGVsbG8="}`), "Model not loaded"},
		{"undecodable", &stubClassifier{}, []byte(`{"image":"not-an-image"}`), "Failed to process image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(config.Default().AMQP, nil, tt.clf, time.Second)
			reply := w.Handle(context.Background(), tt.body)

			assert.True(t, reply.Error != "")
			assert.True(t, reply.Prediction == nil)
			if tt.wantErr != "" {
				assert.Equals(t, reply.Error, tt.wantErr)
			}
		})
	}
}

func TestHandle_ClassifierFailure(t *testing.T) {
	w := New(config.Default().AMQP, nil, &stubClassifier{err: errors.New("backend down")}, time.Second)

	reply := w.Handle(context.Background(), requestBody(t, strokePayload(t)))
	assert.Equals(t, reply.Error, "classification failed: backend down")
	assert.True(t, reply.Prediction == nil)
	assert.True(t, reply.Found)
}

func TestHandle_NoTimeout(t *testing.T) {
	clf := &stubClassifier{digit: 1}
	w := New(config.Default().AMQP, nil, clf, 0)

	w.Handle(context.Background(), requestBody(t, strokePayload(t)))
	assert.True(t, !clf.deadline)
}
