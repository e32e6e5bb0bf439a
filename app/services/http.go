package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// vendorRequest is one outbound JSON call
type vendorRequest struct {
	vendor  string
	op      string
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// doJSON sends req and decodes a 2xx JSON response into out (when non-nil).
// Non-2xx responses and transport failures are returned as *UpstreamError.
func doJSON(ctx context.Context, client *http.Client, req vendorRequest, out any) (err error) {
	start := time.Now()
	defer func() { observeVendorCall(req.vendor, req.op, time.Since(start).Seconds(), err) }()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return newUpstreamError(req.vendor, req.op, 0, nil, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return newUpstreamError(req.vendor, req.op, 0, nil, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return newUpstreamError(req.vendor, req.op, resp.StatusCode, nil, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return newUpstreamError(req.vendor, req.op, resp.StatusCode, raw, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newUpstreamError(req.vendor, req.op, resp.StatusCode, raw, nil)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newUpstreamError(req.vendor, req.op, resp.StatusCode, raw, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// vendorCode accepts result codes sent either as JSON strings or numbers
type vendorCode string

func (v *vendorCode) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		*v = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = vendorCode(str)
		return nil
	}
	*v = vendorCode(s)
	return nil
}

// ok reports a missing code or one of the vendor success values
func (v vendorCode) ok() bool {
	switch v {
	case "", "0", "000", "200":
		return true
	}
	return false
}
