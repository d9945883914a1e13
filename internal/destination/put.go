package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// maxResponseBody bounds how much of an error or upload response is read.
const maxResponseBody = 1 << 20

// putter performs the byte-level PUT of an original to an issued URL,
// retrying network errors, 429 and 5xx responses.
type putter struct {
	client    *http.Client
	retries   uint64
	retryBase time.Duration
}

func newPutter(client *http.Client) *putter {
	if client == nil {
		client = &http.Client{}
	}
	return &putter{client: client, retries: 2, retryBase: 500 * time.Millisecond}
}

// put uploads data with the given Content-Type and returns the response body.
func (p *putter) put(ctx context.Context, uploadURL string, data []byte, contentType string) ([]byte, error) {
	b := retry.WithMaxRetries(p.retries, retry.NewExponential(p.retryBase))

	var respBody []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("building upload request: %w", err)
		}
		req.ContentLength = int64(len(data))
		req.Header.Set("Content-Type", contentType)

		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("uploading original: %w", err))
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("upload returned %s", resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("upload returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		respBody = body
		return nil
	})
	return respBody, err
}

// readAll reads exactly size bytes of an original.
func readAll(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading original: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

// baseName reduces a device file name to a safe final path element.
func baseName(name string) string {
	b := path.Base(filepath.ToSlash(name))
	if b == "." || b == "/" || b == ".." {
		return "original"
	}
	return b
}
