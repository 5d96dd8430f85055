package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceIterator(t *testing.T) {
	itemErr := &ItemError{ExternalID: "112", Err: errors.New("boom")}
	it := &SliceIterator{Items: []SliceItem{
		{Post: &RawPost{ExternalID: "111"}},
		{Err: itemErr},
		{Post: &RawPost{ExternalID: "113"}},
	}}

	post, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "111", post.ExternalID)

	_, err = it.Next()
	var ie *ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "112", ie.ExternalID)

	post, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "113", post.ExternalID)

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrEndOfFeed)
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrEndOfFeed)
}

func TestItemErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ItemError{ExternalID: "111", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "item 111")
}

func TestHTTPSourceTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timeline", r.URL.Path)
		assert.Equal(t, "random_username", r.URL.Query().Get("username"))

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"post":{"id":"111","content":"first","user":{"id":"999","username":"random_username"}}}` + "\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"id":"112","error":"post unavailable"}` + "\n"))
		w.Write([]byte(`not json` + "\n"))
		w.Write([]byte(`{"post":{"id":"113","content":"last","user":{"id":"999","username":"random_username"}}}` + "\n"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	it, err := src.PostsByAuthor(context.Background(), "random_username")
	require.NoError(t, err)

	post, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "111", post.ExternalID)
	assert.Equal(t, "random_username", post.Author.Username)

	// In-band item error, keyed to the failed id
	_, err = it.Next()
	var ie *ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "112", ie.ExternalID)

	// Malformed line is also contained as an item error
	_, err = it.Next()
	require.ErrorAs(t, err, &ie)

	post, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "113", post.ExternalID)

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrEndOfFeed)
}

func TestHTTPSourceThreadQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/thread", r.URL.Path)
		assert.Equal(t, "111", r.URL.Query().Get("id"))
		w.Write([]byte(`{"post":{"id":"111","content":"root","user":{"id":"999","username":"random_username"}}}` + "\n"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	it, err := src.ThreadByPostID(context.Background(), "111")
	require.NoError(t, err)

	post, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "111", post.ExternalID)

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrEndOfFeed)
}

func TestHTTPSourceNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	_, err := src.PostsByAuthor(context.Background(), "random_username")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRawRefIsTombstone(t *testing.T) {
	assert.True(t, (&RawRef{ExternalID: "111"}).IsTombstone())
	assert.False(t, (&RawRef{ExternalID: "111", Post: &RawPost{}}).IsTombstone())
}
