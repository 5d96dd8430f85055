package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Post represents a single ingested tweet.
//
// The four self-references (reply, conversation root, retweet, quote) are
// stored twice: the external id as delivered by the scraper, and a resolved
// pointer to the local row when that row is known. Resolution is lazy - a
// reference to a post we have not seen yet stays unresolved until a later
// save fills it in.
type Post struct {
	ID          uuid.UUID `json:"id" db:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ExternalID  string    `json:"external_id" db:"external_id" gorm:"uniqueIndex;not null"`
	AuthorID    uuid.UUID `json:"author_id" db:"author_id" gorm:"type:uuid;not null;index"`
	Author      *Author   `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Content     string    `json:"content" db:"content"`
	PublishedAt time.Time `json:"published_at" db:"published_at" gorm:"index"`

	// Engagement counters, last-write-wins on re-ingestion
	ReplyCount   int `json:"reply_count" db:"reply_count" gorm:"default:0"`
	RetweetCount int `json:"retweet_count" db:"retweet_count" gorm:"default:0"`
	LikeCount    int `json:"like_count" db:"like_count" gorm:"default:0"`
	QuoteCount   int `json:"quote_count" db:"quote_count" gorm:"default:0"`
	ViewCount    int `json:"view_count" db:"view_count" gorm:"default:0"`

	// Opaque snapshot of the raw scraped record, kept for audit/replay
	RawJSON string `json:"raw_json" db:"raw_json" gorm:"type:text"`

	InReplyToID        string     `json:"in_reply_to_id" db:"in_reply_to_id" gorm:"index"`
	InReplyToPostID    *uuid.UUID `json:"in_reply_to_post_id" db:"in_reply_to_post_id" gorm:"type:uuid"`
	InReplyToPost      *Post      `json:"in_reply_to_post,omitempty" gorm:"foreignKey:InReplyToPostID"`
	ConversationID     string     `json:"conversation_id" db:"conversation_id" gorm:"index"`
	ConversationPostID *uuid.UUID `json:"conversation_post_id" db:"conversation_post_id" gorm:"type:uuid"`
	ConversationPost   *Post      `json:"conversation_post,omitempty" gorm:"foreignKey:ConversationPostID"`
	RetweetedID        string     `json:"retweeted_id" db:"retweeted_id"`
	RetweetedPostID    *uuid.UUID `json:"retweeted_post_id" db:"retweeted_post_id" gorm:"type:uuid"`
	RetweetedPost      *Post      `json:"retweeted_post,omitempty" gorm:"foreignKey:RetweetedPostID"`
	QuotedID           string     `json:"quoted_id" db:"quoted_id"`
	QuotedPostID       *uuid.UUID `json:"quoted_post_id" db:"quoted_post_id" gorm:"type:uuid"`
	QuotedPost         *Post      `json:"quoted_post,omitempty" gorm:"foreignKey:QuotedPostID"`

	// Job that produced this record, if any
	ScrapeJobID *uint      `json:"scrape_job_id" db:"scrape_job_id" gorm:"index"`
	ScrapeJob   *ScrapeJob `json:"scrape_job,omitempty" gorm:"foreignKey:ScrapeJobID"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for the Post model
func (Post) TableName() string {
	return "posts"
}

// SyncReferenceIDs copies the primary key of each resolved reference into
// its cached id column. Pointers that are already cached are left alone.
func (p *Post) SyncReferenceIDs() {
	if p.InReplyToPost != nil && p.InReplyToPostID == nil {
		id := p.InReplyToPost.ID
		p.InReplyToPostID = &id
	}
	if p.ConversationPost != nil && p.ConversationPostID == nil {
		id := p.ConversationPost.ID
		p.ConversationPostID = &id
	}
	if p.RetweetedPost != nil && p.RetweetedPostID == nil {
		id := p.RetweetedPost.ID
		p.RetweetedPostID = &id
	}
	if p.QuotedPost != nil && p.QuotedPostID == nil {
		id := p.QuotedPost.ID
		p.QuotedPostID = &id
	}
}

// TwitterURL returns the canonical twitter.com URL for this post.
// Requires Author to be preloaded.
func (p *Post) TwitterURL() string {
	username := ""
	if p.Author != nil {
		username = p.Author.Username
	}
	return fmt.Sprintf("https://twitter.com/%s/status/%s", username, p.ExternalID)
}

// IsReply reports whether this post was scraped as a reply to another post
func (p *Post) IsReply() bool {
	return p.InReplyToID != ""
}

// InReplyToUsername returns the username of the replied-to post's author,
// or "" when the reference is unresolved. Requires InReplyToPost.Author
// to be preloaded.
func (p *Post) InReplyToUsername() string {
	if p.InReplyToPost != nil && p.InReplyToPost.Author != nil {
		return p.InReplyToPost.Author.Username
	}
	return ""
}

// ConversationUsername returns the username of the conversation root's
// author, or "" when the reference is unresolved
func (p *Post) ConversationUsername() string {
	if p.ConversationPost != nil && p.ConversationPost.Author != nil {
		return p.ConversationPost.Author.Username
	}
	return ""
}

// QuotedUsername returns the username of the quoted post's author, or ""
// when the reference is unresolved
func (p *Post) QuotedUsername() string {
	if p.QuotedPost != nil && p.QuotedPost.Author != nil {
		return p.QuotedPost.Author.Username
	}
	return ""
}

// RetweetedUsername returns the username of the retweeted post's author,
// or "" when the reference is unresolved
func (p *Post) RetweetedUsername() string {
	if p.RetweetedPost != nil && p.RetweetedPost.Author != nil {
		return p.RetweetedPost.Author.Username
	}
	return ""
}
