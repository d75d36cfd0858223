package classifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

const (
	maxRedirects      = 10
	fetchAttempts     = 3
	fetchInitialDelay = 500 * time.Millisecond

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0 Safari/605.1.15"
)

// Fetcher retrieves a domain's landing page for metadata extraction. It
// presents itself as a browser and accepts invalid certificates; the content
// feeds a classifier, not a user.
type Fetcher struct {
	client  *http.Client
	maxKB   int
	timeout time.Duration
}

// NewFetcher creates a fetcher with a per-attempt timeout and a body size cap
// of maxKB kibibytes.
func NewFetcher(timeout time.Duration, maxKB int) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}

				return nil
			},
		},
		maxKB:   maxKB,
		timeout: timeout,
	}
}

// Fetch retrieves the domain over HTTPS (HTTP only when the domain carries an
// explicit scheme), retrying with exponential backoff starting at 500ms. The
// body is truncated to the configured size cap. Returns the HTML, the HTTP
// status, or a ClassifyError on total failure.
func (f *Fetcher) Fetch(ctx context.Context, domain string) (string, int, error) {
	url := domain
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		url = "https://" + domain
	}

	var (
		html   string
		status int
	)

	err := retry.Do(
		func() error {
			var err error
			html, status, err = f.fetchOnce(ctx, url)

			return err
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchInitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", 0, classifyFetchError(err)
	}

	return html, status, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		// Malformed domain: the marker makes the queue processor treat
		// this as permanent.
		return "", 0, retry.Unrecoverable(fmt.Errorf("invalid_domain: %w", err))
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxKB)*1024))
	if err != nil {
		return "", 0, err
	}

	return string(body), resp.StatusCode, nil
}

// classifyFetchError maps a transport failure to the semantic error taxonomy:
// timeouts become DomainFetchTimeoutError, everything else DomainFetchError.
func classifyFetchError(err error) *ClassifyError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newClassifyError(ErrorTypeDomainFetchTimeout, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newClassifyError(ErrorTypeDomainFetchTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ClassifyError{
			Type:    ErrorTypeDomainFetch,
			Message: fmt.Sprintf("dns_resolution_failed: %s", dnsErr.Error()),
			Err:     err,
		}
	}

	return newClassifyError(ErrorTypeDomainFetch, err)
}
