package services

import (
	"encoding/json"
	"fmt"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/source"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/sirupsen/logrus"
)

// Recorder turns raw scraped posts into deduplicated Author and Post rows.
// Nested quoted/retweeted posts are recorded before the post that carries
// them so that cross-references resolve immediately.
type Recorder struct {
	store *store.Store
	log   *logrus.Logger
}

// NewRecorder creates a new recorder on top of the given store
func NewRecorder(st *store.Store, log *logrus.Logger) *Recorder {
	return &Recorder{store: st, log: log}
}

// Record upserts one raw post (and any posts nested inside it) under the
// given job. Returns the stored top-level post and whether it was inserted
// rather than updated. A raw post missing a mandatory field fails with an
// ErrValidation-wrapped error and writes nothing for that post.
func (r *Recorder) Record(raw *source.RawPost, jobID *uint) (*models.Post, bool, error) {
	if raw == nil {
		return nil, false, fmt.Errorf("%w: nil raw post", ErrValidation)
	}

	entries := flattenNested(raw)
	recorded := make(map[string]*models.Post, len(entries))

	var top *models.Post
	var topCreated bool

	for _, entry := range entries {
		if err := validateRawPost(entry); err != nil {
			return nil, false, err
		}

		// Snapshot before any normalization; the blob keeps the original
		// nested shape
		snapshot, err := json.Marshal(entry)
		if err != nil {
			return nil, false, fmt.Errorf("snapshotting post %s: %w", entry.ExternalID, err)
		}

		author, created, err := r.store.EnsureAuthor(&models.Author{
			ExternalID:       entry.Author.ExternalID,
			Username:         entry.Author.Username,
			DisplayName:      entry.Author.DisplayName,
			Description:      entry.Author.Description,
			AccountCreatedAt: entry.Author.CreatedAt,
			Location:         entry.Author.Location,
			FollowersCount:   entry.Author.FollowersCount,
			FollowingCount:   entry.Author.FollowingCount,
			PostCount:        entry.Author.PostCount,
			ListedCount:      entry.Author.ListedCount,
		})
		if err != nil {
			return nil, false, fmt.Errorf("ensuring author %s: %w", entry.Author.ExternalID, err)
		}
		if created {
			r.log.WithFields(logrus.Fields{
				"external_id": author.ExternalID,
				"username":    author.Username,
			}).Debug("Created author")
		}

		post := &models.Post{
			ExternalID:     entry.ExternalID,
			AuthorID:       author.ID,
			Content:        entry.Content,
			PublishedAt:    entry.PublishedAt,
			ReplyCount:     entry.ReplyCount,
			RetweetCount:   entry.RetweetCount,
			LikeCount:      entry.LikeCount,
			QuoteCount:     entry.QuoteCount,
			ViewCount:      entry.ViewCount,
			RawJSON:        string(snapshot),
			InReplyToID:    entry.InReplyToID,
			ConversationID: entry.ConversationID,
			ScrapeJobID:    jobID,
		}
		applyNestedRef(entry.Quoted, &post.QuotedID, &post.QuotedPost, recorded)
		applyNestedRef(entry.Retweeted, &post.RetweetedID, &post.RetweetedPost, recorded)

		stored, created, err := r.store.SavePost(post)
		if err != nil {
			return nil, false, fmt.Errorf("saving post %s: %w", entry.ExternalID, err)
		}
		recorded[entry.ExternalID] = stored

		if entry == raw {
			top, topCreated = stored, created
		}
	}

	return top, topCreated, nil
}

// applyNestedRef sets a quote/retweet external id from a nested ref, and
// the resolved pointer when the nested post was just recorded. A tombstone
// sets the id only.
func applyNestedRef(ref *source.RawRef, id *string, resolved **models.Post, recorded map[string]*models.Post) {
	if ref == nil {
		return
	}
	*id = ref.ExternalID
	if ref.Post != nil {
		if *id == "" {
			*id = ref.Post.ExternalID
		}
		if stored, ok := recorded[ref.Post.ExternalID]; ok {
			*resolved = stored
		}
	}
}

// flattenNested walks the quoted/retweeted nesting without mutating it and
// returns the posts innermost-first. A visited set guards against cyclic
// quote chains, which the source cannot be trusted to never produce.
func flattenNested(raw *source.RawPost) []*source.RawPost {
	type frame struct {
		post     *source.RawPost
		expanded bool
	}

	var out []*source.RawPost
	visited := make(map[string]bool)
	stack := []frame{{post: raw}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.expanded {
			out = append(out, f.post)
			continue
		}
		if visited[f.post.ExternalID] {
			continue
		}
		visited[f.post.ExternalID] = true

		stack = append(stack, frame{post: f.post, expanded: true})
		if f.post.Quoted != nil && f.post.Quoted.Post != nil {
			stack = append(stack, frame{post: f.post.Quoted.Post})
		}
		if f.post.Retweeted != nil && f.post.Retweeted.Post != nil {
			stack = append(stack, frame{post: f.post.Retweeted.Post})
		}
	}

	return out
}

// validateRawPost checks the fields a post cannot be stored without
func validateRawPost(raw *source.RawPost) error {
	switch {
	case raw.ExternalID == "":
		return fmt.Errorf("%w: missing external id", ErrValidation)
	case raw.Content == "":
		return fmt.Errorf("%w: post %s missing content", ErrValidation, raw.ExternalID)
	case raw.PublishedAt.IsZero():
		return fmt.Errorf("%w: post %s missing published time", ErrValidation, raw.ExternalID)
	case raw.Author.ExternalID == "":
		return fmt.Errorf("%w: post %s missing author id", ErrValidation, raw.ExternalID)
	case raw.Author.Username == "":
		return fmt.Errorf("%w: post %s missing author username", ErrValidation, raw.ExternalID)
	}
	return nil
}
