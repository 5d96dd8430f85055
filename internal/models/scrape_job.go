package models

import (
	"time"
)

// JobStatus is the lifecycle state of a ScrapeJob
type JobStatus string

const (
	JobStatusCreated     JobStatus = "created"
	JobStatusStarted     JobStatus = "started"
	JobStatusFinished    JobStatus = "finished"
	JobStatusInterrupted JobStatus = "interrupted"
)

// JobKind selects the crawl strategy for a job
type JobKind int

const (
	// JobKindAuthorTimeline crawls an account's recent posts
	JobKindAuthorTimeline JobKind = iota
	// JobKindThread crawls one post and its full reply tree
	JobKindThread
)

// ScrapeJob is one bounded unit of ingestion work: scrape posts for a
// username (and optionally one specific post's reply thread) within a
// time window.
//
// The primary key is a plain auto-increment so that the scheduler can
// admit queued jobs in creation (FIFO) order.
type ScrapeJob struct {
	ID       uint   `json:"id" db:"id" gorm:"primaryKey"`
	Username string `json:"username" db:"username" gorm:"index;not null"`
	// TwitterID is the target post external id for thread crawls; empty
	// for author-timeline crawls
	TwitterID      string     `json:"twitter_id" db:"twitter_id" gorm:"index"`
	Since          *time.Time `json:"since" db:"since"`
	Until          *time.Time `json:"until" db:"until"`
	IncludeReplies bool       `json:"include_replies" db:"include_replies" gorm:"default:false"`
	Recurse        bool       `json:"recurse" db:"recurse" gorm:"default:false"`

	Status     JobStatus  `json:"status" db:"status" gorm:"type:varchar(12);default:'created';index"`
	StartedAt  *time.Time `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`

	// Free-text execution log, append-only
	Log string `json:"log" db:"log" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Posts []Post `json:"posts,omitempty" gorm:"foreignKey:ScrapeJobID"`
}

// TableName sets the table name for the ScrapeJob model
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}

// Kind resolves the crawl strategy once, from the presence of a target
// post id
func (j *ScrapeJob) Kind() JobKind {
	if j.TwitterID != "" {
		return JobKindThread
	}
	return JobKindAuthorTimeline
}

// Duration returns how long the job ran, or nil if it has not both
// started and ended
func (j *ScrapeJob) Duration() *time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return nil
	}
	d := j.FinishedAt.Sub(*j.StartedAt)
	return &d
}
