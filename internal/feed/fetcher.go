// Package feed retrieves and parses syndication feeds (RSS, Atom, JSON
// Feed) into a flat list of entries. Parsing is delegated to gofeed; this
// package owns the HTTP fetch, the timeout, and the error taxonomy.
//
// The fetcher never retries — retry policy belongs to whoever enqueued the
// job that triggered the fetch.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindNetwork covers connection failures, timeouts, and non-2xx
	// responses. Recoverable by a later fetch.
	KindNetwork Kind = iota
	// KindParse covers responses that are not a recognizable feed.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	}
	return "unknown"
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Entry is one feed item. URL is always non-empty; items without a
// resolvable link are discarded during parsing. Title may be empty.
type Entry struct {
	Title string
	URL   string
}

// Fetcher downloads and parses feeds with a bounded per-request timeout.
type Fetcher struct {
	client  *http.Client
	parser  *gofeed.Parser
	limiter *rate.Limiter
	timeout time.Duration
}

// New creates a Fetcher. Pass nil client to use http.DefaultClient. The
// limiter is a client-side politeness bound shared across all hydrants.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:  client,
		parser:  gofeed.NewParser(),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		timeout: timeout,
	}
}

// Fetch downloads url and returns its entries. The whole operation (connect,
// read, parse) is bounded by the fetcher's timeout regardless of the
// caller's context. Failures are *Error values: KindNetwork for transport
// problems and non-2xx statuses, KindParse for content that is not a feed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "Metagram/1.0 feed reader")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind: KindNetwork,
			URL:  url,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		// gofeed reads the body through the request context, so a mid-body
		// timeout surfaces here rather than from client.Do.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Kind: KindNetwork, URL: url, Err: ctxErr}
		}
		return nil, &Error{Kind: KindParse, URL: url, Err: err}
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		// The link is optional in RSS, but a drop without a URL is useless.
		if item.Link == "" {
			continue
		}
		entries = append(entries, Entry{Title: item.Title, URL: item.Link})
	}
	return entries, nil
}

// AsError unwraps err into a *Error, or nil if it is not one.
func AsError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}
