package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"moments/internal/moments"
)

// HTTPDestination asks an issuance endpoint for an upload URL, then PUTs the
// original there.
//
// Issuance: POST {fileName, fileType, folderId} -> {uploadUrl[, assetRef]}.
// The asset reference is the "id" field of the PUT response when present,
// otherwise the issued assetRef, otherwise the upload URL without its query.
type HTTPDestination struct {
	issueURL string
	apiKey   string
	client   *http.Client
	putter   *putter
}

type issueResponse struct {
	UploadURL string `json:"uploadUrl"`
	AssetRef  string `json:"assetRef,omitempty"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

// NewHTTPDestination creates an HTTPDestination. A nil client uses a default one.
func NewHTTPDestination(issueURL, apiKey string, client *http.Client) *HTTPDestination {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDestination{
		issueURL: issueURL,
		apiKey:   apiKey,
		client:   client,
		putter:   newPutter(client),
	}
}

func (d *HTTPDestination) Request(ctx context.Context, r moments.DestinationRequest) (*moments.Destination, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding destination request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.issueURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building destination request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting destination: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, fmt.Errorf("destination request returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var ir issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("decoding destination response: %w", err)
	}
	if ir.UploadURL == "" {
		return nil, fmt.Errorf("destination response has no uploadUrl")
	}
	return &moments.Destination{UploadURL: ir.UploadURL, AssetRef: ir.AssetRef}, nil
}

func (d *HTTPDestination) Upload(ctx context.Context, dest *moments.Destination, r io.Reader, size int64, contentType string) (string, error) {
	data, err := readAll(r, size)
	if err != nil {
		return "", err
	}

	body, err := d.putter.put(ctx, dest.UploadURL, data, contentType)
	if err != nil {
		return "", err
	}

	var ur uploadResponse
	if len(body) > 0 && json.Unmarshal(body, &ur) == nil && ur.ID != "" {
		return ur.ID, nil
	}
	if dest.AssetRef != "" {
		return dest.AssetRef, nil
	}
	u, err := url.Parse(dest.UploadURL)
	if err != nil {
		return "", fmt.Errorf("parsing upload url: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

var _ moments.OriginalDestination = (*HTTPDestination)(nil)
