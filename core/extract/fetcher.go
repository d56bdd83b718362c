package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

// FetchFunc downloads the raw bytes behind a document URL
type FetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

// Fetcher downloads PDFs over HTTP
type Fetcher struct {
	client *http.Client
	config model.ExtractConfig
	retry  model.RetryConfig
	log    *slog.Logger
}

// NewFetcher creates a new HTTP fetcher.
// Transport errors and 5xx responses are retried with the given policy.
func NewFetcher(config model.ExtractConfig, retry model.RetryConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		config: config,
		retry:  retry,
		log:    logger,
	}
}

// ValidateURL checks that rawURL is an absolute http or https URL
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url: missing host")
	}
	return u, nil
}

// Fetch downloads the document at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	fingerprint := model.FingerprintURL(rawURL)

	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, err)
	}

	operation := func() ([]byte, error) {
		return f.download(ctx, u.String())
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warn("Download failed, retrying", slog.String("url", u.Redacted()), slog.Duration("wait", wait), slog.String("error", err.Error()))
	}

	data, err := backoff.RetryNotifyWithData(operation, helper.NewBackOff(ctx, f.retry.MaxRetries, f.retry.InitialInterval, f.retry.MaxInterval), notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.AsTimeout(fingerprint, err)
		}
		var statusErr *StatusError
		retryable := !errors.As(err, &statusErr) || statusErr.Temporary()
		if errors.Is(err, ErrTooLarge) {
			retryable = false
		}
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, retryable, helper.NewError("download pdf", err))
	}

	f.log.Info("Downloaded document", slog.String("url", u.Redacted()), slog.Int("bytes", len(data)))

	return data, nil
}

// ErrTooLarge is returned when a download exceeds the configured byte cap
var ErrTooLarge = errors.New("file too large")

// StatusError is returned for non 2xx responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	maxBytes := f.config.MaxBytes
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, backoff.Permanent(fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength))
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, backoff.Permanent(fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes))
	}

	return data, nil
}
