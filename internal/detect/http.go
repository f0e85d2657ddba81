package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/httputil"
)

// HTTPDetector sends frames to a model server over HTTP. The server is
// expected to answer POST {base}/detect with a JSON body of the Result
// shape.
type HTTPDetector struct {
	base   string
	client httputil.HTTPClient

	mu         sync.Mutex
	confidence float64
}

// NewHTTPDetector returns a detector posting to the model server at
// base (e.g. "http://localhost:9000"). A nil client falls back to
// http.DefaultClient.
func NewHTTPDetector(base string, confidence float64, client httputil.HTTPClient) *HTTPDetector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDetector{base: base, client: client, confidence: confidence}
}

// SetConfidence updates the detection confidence threshold applied to
// subsequent calls.
func (d *HTTPDetector) SetConfidence(confidence float64) error {
	if confidence <= 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range (0, 1]", confidence)
	}
	d.mu.Lock()
	d.confidence = confidence
	d.mu.Unlock()
	return nil
}

// Confidence returns the current threshold.
func (d *HTTPDetector) Confidence() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confidence
}

// Detect posts the frame to the model server and decodes the result. A
// nil or empty frame short-circuits to an empty Result.
func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) (Result, error) {
	if len(frame) == 0 {
		return Result{Counts: map[string]int{}}, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	u := fmt.Sprintf("%s/detect?%s", d.base, url.Values{
		"confidence": []string{strconv.FormatFloat(d.Confidence(), 'f', -1, 64)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(frame))
	if err != nil {
		return Result{}, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("detect call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("detect call: unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode detect response: %w", err)
	}
	if result.Counts == nil {
		result.Counts = map[string]int{}
	}
	return result, nil
}
