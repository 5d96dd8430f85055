// Package source defines the capability consumed from the external tweet
// scraper: lazy sequences of raw post records for an author's timeline or
// for the reply thread under one post.
//
// The network/pagination mechanics live behind the Source interface; this
// package only fixes the record shape and the iteration contract.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEndOfFeed is returned by Iterator.Next when the sequence is drained
var ErrEndOfFeed = errors.New("source: end of feed")

// ItemError reports a failure local to a single item in a sequence.
// Iteration continues past an ItemError; any other error from Next is
// fatal to the whole sequence.
type ItemError struct {
	// ExternalID of the failed item, when the source could identify it
	ExternalID string
	Err        error
}

func (e *ItemError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("source: item %s: %v", e.ExternalID, e.Err)
	}
	return fmt.Sprintf("source: item failed: %v", e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// RawAuthor is the account record embedded in a scraped post
type RawAuthor struct {
	ExternalID     string     `json:"id"`
	Username       string     `json:"username"`
	DisplayName    string     `json:"displayname"`
	Description    string     `json:"description"`
	CreatedAt      *time.Time `json:"created"`
	Location       string     `json:"location"`
	FollowersCount int        `json:"followers_count"`
	FollowingCount int        `json:"following_count"`
	PostCount      int        `json:"post_count"`
	ListedCount    int        `json:"listed_count"`
}

// RawRef points at a nested quoted or retweeted post. Post is nil when the
// referenced post is a tombstone (deleted or inaccessible, known only by id).
type RawRef struct {
	ExternalID string   `json:"id"`
	Post       *RawPost `json:"post,omitempty"`
}

// IsTombstone reports whether only the id of the referenced post is known
func (r *RawRef) IsTombstone() bool {
	return r.Post == nil
}

// RawPost is one item as delivered by the scraper, prior to normalization
type RawPost struct {
	ExternalID  string    `json:"id"`
	Author      RawAuthor `json:"user"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"date"`

	ReplyCount   int `json:"reply_count"`
	RetweetCount int `json:"retweet_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
	ViewCount    int `json:"view_count"`

	InReplyToID    string `json:"in_reply_to_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	Quoted    *RawRef `json:"quoted,omitempty"`
	Retweeted *RawRef `json:"retweeted,omitempty"`
}

// Iterator yields raw posts one at a time. Next returns ErrEndOfFeed once
// the sequence is drained, and may return a *ItemError for failures local
// to one item without terminating the sequence.
type Iterator interface {
	Next() (*RawPost, error)
}

// Source supplies lazy raw-post sequences. Implementations wrap the actual
// scraper; each call restarts the underlying query.
type Source interface {
	// PostsByAuthor yields the account's posts, most recent first
	PostsByAuthor(ctx context.Context, username string) (Iterator, error)
	// ThreadByPostID yields the post with the given external id and its
	// reply tree
	ThreadByPostID(ctx context.Context, externalID string) (Iterator, error)
}
