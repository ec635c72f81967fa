// Package fetch retrieves raw document bytes from the object storage
// collaborator. Documents are addressed either by full URL or by a bare
// storage key resolved against a configured base URL.
package fetch

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_source.go -package=mocks docsage/internal/fetch Source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docsage/internal/contextutil"
)

// ErrDownload is returned when a document cannot be fetched or comes back
// empty. A failed download is fatal to the build that requested it.
var ErrDownload = errors.New("document download failed")

// Source fetches raw document bytes for a reference.
type Source interface {
	Fetch(ctx context.Context, reference string) ([]byte, error)
}

// Downloader fetches documents over HTTP. It implements Source.
type Downloader struct {
	baseURL string
	client  *http.Client
}

// NewDownloader creates a Downloader. baseURL may be empty, in which case
// only absolute URL references are accepted. timeout bounds the whole
// download; callers can impose a tighter bound via ctx.
func NewDownloader(baseURL string, timeout time.Duration) *Downloader {
	return &Downloader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the document identified by reference.
// Non-2xx responses, transport failures, and empty bodies all surface as
// ErrDownload so the caller can treat them as one failure class.
func (d *Downloader) Fetch(ctx context.Context, reference string) ([]byte, error) {
	logger := contextutil.LoggerFromContext(ctx)

	target, err := d.resolve(reference)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reference %q: %v", ErrDownload, reference, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "document download failed", "reference", reference, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.ErrorContext(ctx, "document download returned bad status", "reference", reference, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrDownload, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrDownload)
	}

	logger.DebugContext(ctx, "document downloaded", "reference", reference, "bytes", len(content))
	return content, nil
}

// resolve turns a reference into a fetchable URL. Absolute http(s) URLs pass
// through; bare keys are joined to the configured base URL.
func (d *Downloader) resolve(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrDownload)
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return ref, nil
	}
	if d.baseURL == "" {
		return "", fmt.Errorf("%w: reference %q is not a URL and no document base URL is configured", ErrDownload, ref)
	}
	return d.baseURL + "/" + strings.TrimLeft(ref, "/"), nil
}
