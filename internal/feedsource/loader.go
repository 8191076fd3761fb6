// Package feedsource reads a single feed document from a file, stdin or an
// HTTP(S) URL.
package feedsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// StdinPath is the Path value that selects Input.Stdin.
const StdinPath = "-"

// Input describes where the document comes from. URL wins over Path.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Path is a file path, or StdinPath to read Stdin.
	Path string

	// Stdin is read when Path is StdinPath. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads feeds with a consistent timeout policy.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
// A timeout <= 0 means no per-request timeout beyond the client's own.
func NewLoader(client *http.Client, timeout time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		client:    client,
		timeout:   timeout,
		userAgent: "reaxml/1.0",
	}
}

// Load returns the raw document for input.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body for debugging. Missing files
// surface as errors matching fs.ErrNotExist.
func (l *Loader) Load(ctx context.Context, input Input) ([]byte, error) {
	switch {
	case strings.TrimSpace(input.URL) != "":
		return l.fetch(ctx, input.URL)

	case input.Path == StdinPath:
		if input.Stdin == nil {
			return nil, nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil

	case input.Path != "":
		b, err := os.ReadFile(input.Path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("feedsource: no url, path or stdin given")
	}
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}
