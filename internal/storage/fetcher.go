package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gilkh/livret/internal/imageprocessing"
	"github.com/gilkh/livret/internal/utils"
)

// DefaultMaxBytes caps any single image source.
const DefaultMaxBytes = 15 << 20

// ObjectReader reads objects from a bucket store.
type ObjectReader interface {
	ReadFile(ctx context.Context, bucket, object string, limit int64) ([]byte, error)
}

// FetcherOptions wires the places an image source can live.
type FetcherOptions struct {
	// Uploads serves server paths under UploadsPrefix without a network hop
	Uploads       Backend
	UploadsPrefix string
	// PublicBaseURL resolves other server-relative paths
	PublicBaseURL string
	GCS           ObjectReader
	HTTPClient    *http.Client
	Timeout       time.Duration
	MaxBytes      int64
	// Validate vets remote URLs before they are requested
	Validate func(ctx context.Context, url string) error
}

// Fetcher loads image bytes from data: URIs, uploads, gs:// objects and
// http(s) URLs.
type Fetcher struct {
	opts FetcherOptions
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.UploadsPrefix == "" {
		opts.UploadsPrefix = "/uploads/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Validate == nil {
		opts.Validate = utils.ValidateURL
	}
	return &Fetcher{opts: opts}
}

// Load returns the raw bytes of src.
func (f *Fetcher) Load(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, fmt.Errorf("empty image source")
	case strings.HasPrefix(src, "data:"):
		data, _, err := imageprocessing.ParseDataURI(src)
		return data, err
	case strings.HasPrefix(src, "gs://"):
		if f.opts.GCS == nil {
			return nil, fmt.Errorf("gs:// source without GCS configured: %s", src)
		}
		bucket, object, err := ParseGCSURL(src)
		if err != nil {
			return nil, err
		}
		return f.opts.GCS.ReadFile(ctx, bucket, object, f.opts.MaxBytes)
	case f.opts.Uploads != nil && strings.HasPrefix(src, f.opts.UploadsPrefix):
		return f.loadUpload(ctx, strings.TrimPrefix(src, f.opts.UploadsPrefix))
	case strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//"):
		if f.opts.PublicBaseURL == "" {
			return nil, fmt.Errorf("server path %s without PUBLIC_BASE_URL", src)
		}
		return f.loadHTTP(ctx, utils.ResolveAgainst(f.opts.PublicBaseURL, src))
	case strings.HasPrefix(src, "//"):
		return f.loadHTTP(ctx, "https:"+src)
	}
	return f.loadHTTP(ctx, src)
}

// DataURI loads ref and encodes it inline. Data URIs are returned untouched.
func (f *Fetcher) DataURI(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	data, err := f.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	return imageprocessing.ToDataURI(data), nil
}

func (f *Fetcher) loadUpload(ctx context.Context, key string) ([]byte, error) {
	rc, err := f.opts.Uploads.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, f.opts.MaxBytes, key)
}

var errRetryable = errors.New("retryable fetch failure")

func (f *Fetcher) loadHTTP(ctx context.Context, url string) ([]byte, error) {
	if err := f.opts.Validate(ctx, url); err != nil {
		return nil, fmt.Errorf("image URL rejected: %w", err)
	}

	const attempts = 2
	delay := 250 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		data, err := f.get(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errors.Is(err, errRetryable) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w: %w", url, errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d: %w", url, resp.StatusCode, errRetryable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return readLimited(resp.Body, f.opts.MaxBytes, url)
}

func readLimited(r io.Reader, limit int64, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, limit)
	}
	return data, nil
}
