// Package analysis is the client for the remote face-detection backend.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/constants"
	"github.com/kozaktomas/face-monitor/internal/detection"
	_ "golang.org/x/image/webp"
)

// RequestEditor may modify every outgoing request, e.g. to attach session credentials.
type RequestEditor func(req *http.Request) error

// Client posts images to the detection endpoint and fetches annotated results.
type Client struct {
	Origin      string
	parsedURL   *url.URL
	timeout     time.Duration
	httpClient  *http.Client
	editRequest RequestEditor
	captureDir  string
}

// NewClient creates a client for the backend at origin.
// timeout bounds each request; 0 disables the deadline.
func NewClient(origin string, timeout time.Duration) (*Client, error) {
	origin = strings.TrimRight(origin, "/")
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid backend origin: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend origin %q: scheme must be http or https", origin)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend origin %q: missing host", origin)
	}

	return &Client{
		Origin:     origin,
		parsedURL:  parsed,
		timeout:    timeout,
		httpClient: &http.Client{},
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetRequestEditor installs a hook applied to every request before it is sent.
func (c *Client) SetRequestEditor(fn RequestEditor) {
	c.editRequest = fn
}

// resolveURL builds a backend URL from path segments.
func (c *Client) resolveURL(pathSegments ...string) string {
	return c.parsedURL.JoinPath(pathSegments...).String()
}

// AbsoluteURL passes absolute URLs through and prefixes relative ones with the backend origin.
func (c *Client) AbsoluteURL(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return raw
	}
	if ref.Host != "" {
		// protocol-relative
		return c.parsedURL.ResolveReference(ref).String()
	}
	return c.Origin + "/" + strings.TrimPrefix(raw, "/")
}

// Analyze uploads img as the single multipart field "image" and parses the detections.
func (c *Client) Analyze(ctx context.Context, img *capture.Image) (*detection.Result, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, capture.ErrEmptyImage
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(constants.ImageFormField, img.Name)
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, fmt.Errorf("could not copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(constants.DetectImageEndpoint), &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseSize))
	if err != nil {
		return nil, c.transportError(ctx, fmt.Errorf("could not read response body: %w", err))
	}

	c.captureResponse(constants.DetectImageEndpoint, respBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerAnalysisError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, respBody),
		}
	}

	result, err := detection.Decode(respBody, c.AbsoluteURL)
	if err != nil {
		return nil, &ServerAnalysisError{
			Status:  resp.StatusCode,
			Message: "invalid response from detection backend",
			Err:     err,
		}
	}
	return result, nil
}

// FetchImage downloads and decodes an image served by the backend, typically the annotated result.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.AbsoluteURL(rawURL), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseSize))
		return nil, &ServerAnalysisError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
		}
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, constants.MaxResultImageSize))
	if err != nil {
		if tErr := c.transportError(ctx, err); errors.Is(tErr, ErrTimeout) {
			return nil, tErr
		}
		return nil, &ServerAnalysisError{
			Status:  resp.StatusCode,
			Message: "result image could not be decoded",
			Err:     err,
		}
	}
	return img, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// do applies the request editor and sends the request, mapping transport failures.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.editRequest != nil {
		if err := c.editRequest(req); err != nil {
			return nil, fmt.Errorf("could not prepare request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	return resp, nil
}

// transportError classifies a failure that happened before a usable response arrived.
func (c *Client) transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("analysis request cancelled: %w", context.Canceled)
	default:
		return &NetworkError{Err: err}
	}
}

// SetCaptureDir enables saving raw backend responses to dir.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// captureResponse saves a response body to the capture directory if capturing is enabled.
func (c *Client) captureResponse(endpoint string, body []byte) {
	if c.captureDir == "" {
		return
	}

	filename := strings.ReplaceAll(endpoint, "/", "_")
	filename = strings.TrimPrefix(filename, "_")
	timestamp := time.Now().Format("20060102_150405.000")
	filename = fmt.Sprintf("%s_%s.json", filename, timestamp)

	path := filepath.Join(c.captureDir, filename)

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
		body = prettyJSON.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to capture response to %s: %v\n", path, err)
	}
}
