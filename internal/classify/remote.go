package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ironsheep/digit-normalizer/internal/imaging"
)

// Remote classifies tensors with a model served over HTTP in the
// TensorFlow Serving REST format:
//
//	POST <endpoint>  {"instances": [[[[0.0], ...]]]}
//	200              {"predictions": [[p0, p1, ..., p9]]}
type Remote struct {
	url    *url.URL
	client *http.Client
}

type predictRequest struct {
	Instances *imaging.Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// NewRemote creates a client for the predict endpoint at rawURL. A nil
// client uses http.DefaultClient.
func NewRemote(rawURL string, client *http.Client) (*Remote, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: unsupported scheme %q", u.Scheme)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &Remote{url: u, client: client}, nil
}

// Classify sends t to the model and converts the first prediction row.
func (r *Remote) Classify(ctx context.Context, t *imaging.Tensor) (*Prediction, error) {
	body, err := json.Marshal(predictRequest{Instances: t})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		resp, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, fmt.Errorf("server response status code: %d, body: %s", response.StatusCode, resp)
	}

	var resp predictResponse
	if err = json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("model error: %s", resp.Error)
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("model returned no predictions")
	}

	return FromDistribution(resp.Predictions[0])
}

// Health checks the model status resource. For an endpoint ending in
// ":predict" the status URL is the same path without that suffix.
func (r *Remote) Health(ctx context.Context) error {
	status := *r.url
	status.Path = strings.TrimSuffix(status.Path, ":predict")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, status.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	response, err := r.client.Do(request)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: %d", response.StatusCode)
	}
	return nil
}

// Info reports the remote backend and its endpoint.
func (r *Remote) Info() ModelInfo {
	return ModelInfo{
		Backend:     "remote",
		InputShape:  DefaultInputShape(),
		OutputShape: DefaultOutputShape(),
		Endpoint:    r.url.String(),
	}
}
