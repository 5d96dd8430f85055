package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostTwitterURL(t *testing.T) {
	post := Post{
		ExternalID: "111",
		Author:     &Author{Username: "random_username"},
	}
	assert.Equal(t, "https://twitter.com/random_username/status/111", post.TwitterURL())

	bare := Post{ExternalID: "111"}
	assert.Equal(t, "https://twitter.com//status/111", bare.TwitterURL())
}

func TestPostIsReply(t *testing.T) {
	assert.False(t, (&Post{}).IsReply())
	assert.True(t, (&Post{InReplyToID: "111"}).IsReply())
}

func TestPostReferenceUsernames(t *testing.T) {
	post := Post{}
	assert.Equal(t, "", post.InReplyToUsername())
	assert.Equal(t, "", post.ConversationUsername())

	// Resolved row without its author preloaded still reads as unresolved
	post.InReplyToPost = &Post{ExternalID: "111"}
	assert.Equal(t, "", post.InReplyToUsername())

	post.InReplyToPost.Author = &Author{Username: "other_user"}
	post.ConversationPost = post.InReplyToPost
	assert.Equal(t, "other_user", post.InReplyToUsername())
	assert.Equal(t, "other_user", post.ConversationUsername())
}

func TestSyncReferenceIDs(t *testing.T) {
	target := &Post{ID: uuid.New()}
	post := Post{InReplyToPost: target, QuotedPost: target}

	post.SyncReferenceIDs()

	require.NotNil(t, post.InReplyToPostID)
	assert.Equal(t, target.ID, *post.InReplyToPostID)
	require.NotNil(t, post.QuotedPostID)
	assert.Equal(t, target.ID, *post.QuotedPostID)
	assert.Nil(t, post.ConversationPostID)
	assert.Nil(t, post.RetweetedPostID)

	// An already cached id is authoritative and is not overwritten
	stale := uuid.New()
	post.ConversationPostID = &stale
	post.ConversationPost = target
	post.SyncReferenceIDs()
	assert.Equal(t, stale, *post.ConversationPostID)
}
