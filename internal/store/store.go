// Package store is the persistence layer: keyed lookup and upsert of
// Author and Post rows by external id, plus the job queries used by the
// scheduler and the conversation-job derivation.
package store

import (
	"errors"

	"github.com/thiago-paim/twitter-scraping/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a gorm handle. All methods are safe for a single writer per
// external id; cross-job races fall back on the unique constraints.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open database handle
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that compose their own
// queries (handlers, exports)
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to one database transaction
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// GetAuthorByExternalID returns the author row, or nil when unknown
func (s *Store) GetAuthorByExternalID(externalID string) (*models.Author, error) {
	var author models.Author
	err := s.db.Where("external_id = ?", externalID).First(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &author, nil
}

// EnsureAuthor creates the author on first sighting and returns the
// existing row untouched otherwise (first-write-wins). The unique
// constraint on external_id turns a concurrent double-create into a
// re-fetch instead of a duplicate.
func (s *Store) EnsureAuthor(author *models.Author) (*models.Author, bool, error) {
	existing, err := s.GetAuthorByExternalID(author.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := s.db.Create(author).Error; err != nil {
		// Lost a create race; the row should exist now
		existing, ferr := s.GetAuthorByExternalID(author.ExternalID)
		if ferr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return author, true, nil
}

// GetPostByExternalID returns the post row, or nil when unknown
func (s *Store) GetPostByExternalID(externalID string) (*models.Post, error) {
	var post models.Post
	err := s.db.Where("external_id = ?", externalID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ResolveReferences fills in the resolved pointer of each self-reference
// whose external id is set but whose target row has not been looked up
// yet. Unknown ids are left unresolved; they are retried on the next save
// that needs them. A pointer that is already set is never re-queried.
func (s *Store) ResolveReferences(post *models.Post) error {
	refs := []struct {
		externalID string
		cached     **uuid.UUID
		target     **models.Post
	}{
		{post.InReplyToID, &post.InReplyToPostID, &post.InReplyToPost},
		{post.ConversationID, &post.ConversationPostID, &post.ConversationPost},
		{post.RetweetedID, &post.RetweetedPostID, &post.RetweetedPost},
		{post.QuotedID, &post.QuotedPostID, &post.QuotedPost},
	}

	for _, ref := range refs {
		if ref.externalID == "" || *ref.cached != nil || *ref.target != nil {
			continue
		}
		resolved, err := s.GetPostByExternalID(ref.externalID)
		if err != nil {
			return err
		}
		if resolved != nil {
			*ref.target = resolved
		}
	}

	post.SyncReferenceIDs()
	return nil
}

// SavePost upserts a post by external id. An existing row keeps its
// identity and gets its mutable fields (content, counters, reference ids,
// snapshot, job) updated in place. Returns the stored row and whether it
// was inserted rather than updated.
func (s *Store) SavePost(post *models.Post) (*models.Post, bool, error) {
	existing, err := s.GetPostByExternalID(post.ExternalID)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		if err := s.ResolveReferences(post); err != nil {
			return nil, false, err
		}
		if err := s.db.Omit(clause.Associations).Create(post).Error; err != nil {
			return nil, false, err
		}
		return post, true, nil
	}

	existing.Content = post.Content
	existing.PublishedAt = post.PublishedAt
	existing.AuthorID = post.AuthorID
	existing.ReplyCount = post.ReplyCount
	existing.RetweetCount = post.RetweetCount
	existing.LikeCount = post.LikeCount
	existing.QuoteCount = post.QuoteCount
	existing.ViewCount = post.ViewCount
	existing.RawJSON = post.RawJSON
	existing.InReplyToID = post.InReplyToID
	existing.ConversationID = post.ConversationID
	existing.RetweetedID = post.RetweetedID
	existing.QuotedID = post.QuotedID
	if post.ScrapeJobID != nil {
		existing.ScrapeJobID = post.ScrapeJobID
	}

	if err := s.ResolveReferences(existing); err != nil {
		return nil, false, err
	}
	if err := s.db.Omit(clause.Associations).Save(existing).Error; err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetJob returns a job by primary key
func (s *Store) GetJob(id uint) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountJobsByStatus returns the number of jobs in the given status
func (s *Store) CountJobsByStatus(status models.JobStatus) (int64, error) {
	var count int64
	err := s.db.Model(&models.ScrapeJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// QueuedJobs returns up to limit created jobs in FIFO (ascending id) order
func (s *Store) QueuedJobs(limit int) ([]models.ScrapeJob, error) {
	var jobs []models.ScrapeJob
	q := s.db.Where("status = ?", models.JobStatusCreated).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// JobsByStatus lists jobs filtered by status, newest first
func (s *Store) JobsByStatus(status models.JobStatus) ([]models.ScrapeJob, error) {
	var jobs []models.ScrapeJob
	q := s.db.Order("id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// RootPostsForJob returns the posts recorded under a job that are not
// replies, i.e. the thread roots eligible for conversation crawls
func (s *Store) RootPostsForJob(jobID uint) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.
		Where("scrape_job_id = ?", jobID).
		Where("in_reply_to_id = '' OR in_reply_to_id IS NULL").
		Order("published_at ASC").
		Find(&posts).Error
	return posts, err
}

// LiveThreadJobExists reports whether a created or started reply crawl
// already targets the given post for this username
func (s *Store) LiveThreadJobExists(username, twitterID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.ScrapeJob{}).
		Where("username = ?", username).
		Where("twitter_id = ?", twitterID).
		Where("include_replies = ?", true).
		Where("status IN ?", []models.JobStatus{models.JobStatusCreated, models.JobStatusStarted}).
		Count(&count).Error
	return count > 0, err
}

// CreateJob inserts a new job row
func (s *Store) CreateJob(job *models.ScrapeJob) error {
	return s.db.Create(job).Error
}

// PostsForJobs returns the posts attached to the given jobs with their
// author and resolved references preloaded, ready for export
func (s *Store) PostsForJobs(jobIDs []uint) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.
		Where("scrape_job_id IN ?", jobIDs).
		Preload("Author").
		Preload("InReplyToPost.Author").
		Preload("ConversationPost.Author").
		Preload("QuotedPost.Author").
		Preload("RetweetedPost.Author").
		Order("published_at ASC").
		Find(&posts).Error
	return posts, err
}
