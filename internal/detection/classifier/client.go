// Package classifier is the HTTP client of the model inference service that scores weekly vectors.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable wraps transport failures and non-2xx responses.
var ErrUnavailable = errors.New("classifier: unavailable")

// Model describes the loaded model version.
type Model struct {
	Name    string `json:"model_name"`
	Version string `json:"version"`
	// Classes lists class labels in the column order of prediction probabilities.
	Classes []int `json:"classes"`
	// FeatureNames is the input column order the model was trained on.
	FeatureNames []string `json:"feature_names"`
}

// Prediction is the output for a batch of rows.
type Prediction struct {
	Classes       []int       `json:"predictions"`
	Probabilities [][]float64 `json:"probabilities"`
}

type predictRequest struct {
	Data        [][]float64 `json:"data"`
	ReturnProba bool        `json:"return_proba"`
}

// HealthResponse is the response of the health endpoint.
type HealthResponse struct {
	Status       string   `json:"status"`
	LoadedModels []string `json:"loaded_models"`
}

// Client talks to one model of the inference service.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient returns a client for model at baseURL. timeout bounds each request (30s when <= 0).
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health checks if the service is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Load returns the model's metadata. The service loads the model on first use.
func (c *Client) Load(ctx context.Context) (*Model, error) {
	var out Model
	if err := c.do(ctx, http.MethodGet, "/v1/models/"+url.PathEscape(c.model), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Classes) == 0 {
		return nil, fmt.Errorf("%w: model %s reports no classes", ErrUnavailable, c.model)
	}
	return &out, nil
}

// Predict scores rows. The response has one class and one probability row per input row.
func (c *Client) Predict(ctx context.Context, rows [][]float64) (*Prediction, error) {
	var out Prediction
	req := predictRequest{Data: rows, ReturnProba: true}
	if err := c.do(ctx, http.MethodPost, "/v1/models/"+url.PathEscape(c.model)+"/predict", req, &out); err != nil {
		return nil, err
	}
	if len(out.Classes) != len(rows) || len(out.Probabilities) != len(rows) {
		return nil, fmt.Errorf("%w: %d rows scored as %d predictions and %d probability rows",
			ErrUnavailable, len(rows), len(out.Classes), len(out.Probabilities))
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("classifier: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("classifier: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, path, err)
	}
	return nil
}
