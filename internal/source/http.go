package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPSource adapts a scraper sidecar service into the Source capability.
// The sidecar owns the actual network scraping and pagination; it exposes
// the results as newline-delimited JSON streams.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates a source client for the given sidecar base URL.
// No overall timeout is set on the client: feeds are long-lived streams
// and cancellation is carried by the request context.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// PostsByAuthor streams the account's timeline from the sidecar
func (s *HTTPSource) PostsByAuthor(ctx context.Context, username string) (Iterator, error) {
	return s.open(ctx, "/timeline", url.Values{"username": {username}})
}

// ThreadByPostID streams one post's reply tree from the sidecar
func (s *HTTPSource) ThreadByPostID(ctx context.Context, externalID string) (Iterator, error) {
	return s.open(ctx, "/thread", url.Values{"id": {externalID}})
}

func (s *HTTPSource) open(ctx context.Context, path string, query url.Values) (Iterator, error) {
	reqURL := fmt.Sprintf("%s%s?%s", s.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ndjsonIterator{body: resp.Body, scanner: scanner}, nil
}

// feedLine is one NDJSON line from the sidecar: either a post or an
// item-level error reported in-band
type feedLine struct {
	Error      string   `json:"error,omitempty"`
	ExternalID string   `json:"id,omitempty"`
	Post       *RawPost `json:"post,omitempty"`
}

// ndjsonIterator yields RawPosts from a newline-delimited JSON stream.
// Malformed lines and in-band item errors surface as *ItemError so the
// caller can skip them without ending iteration.
type ndjsonIterator struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (it *ndjsonIterator) Next() (*RawPost, error) {
	if it.done {
		return nil, ErrEndOfFeed
	}

	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var item feedLine
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, &ItemError{Err: fmt.Errorf("malformed feed line: %w", err)}
		}
		if item.Error != "" {
			return nil, &ItemError{ExternalID: item.ExternalID, Err: fmt.Errorf("%s", item.Error)}
		}
		if item.Post == nil {
			return nil, &ItemError{ExternalID: item.ExternalID, Err: fmt.Errorf("feed line without post payload")}
		}
		return item.Post, nil
	}

	it.done = true
	it.body.Close()
	if err := it.scanner.Err(); err != nil {
		return nil, fmt.Errorf("feed stream broke: %w", err)
	}
	return nil, ErrEndOfFeed
}

// SliceIterator yields a fixed sequence; entries may be posts or errors.
// Mostly useful for tests and replays of snapshotted feeds.
type SliceIterator struct {
	Items []SliceItem
	pos   int
}

// SliceItem is one entry of a SliceIterator
type SliceItem struct {
	Post *RawPost
	Err  error
}

func (it *SliceIterator) Next() (*RawPost, error) {
	if it.pos >= len(it.Items) {
		return nil, ErrEndOfFeed
	}
	item := it.Items[it.pos]
	it.pos++
	if item.Err != nil {
		return nil, item.Err
	}
	return item.Post, nil
}

// interface checks
var (
	_ Source   = (*HTTPSource)(nil)
	_ Iterator = (*ndjsonIterator)(nil)
	_ Iterator = (*SliceIterator)(nil)
)
