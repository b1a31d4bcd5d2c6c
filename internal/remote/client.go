package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"compsheet/internal/config"
)

var ErrTooLarge = errors.New("download exceeds size limit")

// Download is one fetched spreadsheet export.
type Download struct {
	Name        string
	ContentType string
	Body        []byte
}

// Client downloads comp exports from MLS and brokerage URLs, pacing
// requests and retrying throttled or failing responses.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
	backoff    func(attempt int) time.Duration
	maxWait    time.Duration
}

const maxRetryWait = 60 * time.Second

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RemoteTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RemoteRateLimitRPS),
		logger:     logger,
		backoff:    defaultBackoff,
		maxWait:    maxRetryWait,
	}
}

func (c *Client) Download(ctx context.Context, rawURL string) (Download, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Download{}, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Download{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	attempts := c.cfg.RemoteMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Download{}, err
		}

		dl, retryAfter, err := c.fetchOnce(ctx, u)
		if err == nil {
			return dl, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return Download{}, perm.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := c.backoff(attempt)
		if retryAfter > wait {
			wait = retryAfter
		}
		if wait > c.maxWait {
			wait = c.maxWait
		}
		c.logger.Warn("download retry",
			zap.String("url", u.Redacted()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return Download{}, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("download failed")
	}
	return Download{}, fmt.Errorf("download %s after %d attempts: %w", u.Redacted(), attempts, lastErr)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }

func (c *Client) fetchOnce(ctx context.Context, u *url.URL) (Download, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Download{}, 0, permanentError{err}
	}
	if token := strings.TrimSpace(c.cfg.RemoteAuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, text/html, application/pdf, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Download{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if isRetryableStatus(resp.StatusCode) {
			return Download{}, retryAfter(resp.Header.Get("Retry-After")), statusErr
		}
		return Download{}, 0, permanentError{statusErr}
	}

	reader := io.Reader(resp.Body)
	limit := c.cfg.MaxUploadBytes
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Download{}, 0, err
	}
	if limit > 0 && int64(len(body)) > limit {
		return Download{}, 0, permanentError{fmt.Errorf("%s: %w (%d bytes)", u.Redacted(), ErrTooLarge, limit)}
	}

	contentType := resp.Header.Get("Content-Type")
	return Download{
		Name:        downloadName(resp.Header.Get("Content-Disposition"), u, contentType),
		ContentType: contentType,
		Body:        body,
	}, 0, nil
}

// downloadName prefers the server's filename, then the URL path, and finally
// invents one from the content type so the extension picks the reader.
func downloadName(disposition string, u *url.URL, contentType string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return path.Base(name)
		}
	}
	if base := path.Base(u.Path); base != "." && base != "/" && path.Ext(base) != "" {
		return base
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/csv", "application/csv":
		return "download.csv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "download.xlsx"
	case "text/html":
		return "download.html"
	case "application/pdf":
		return "download.pdf"
	default:
		return "download"
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func retryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}
