package services

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/store"
)

// csvHeader is the flat export record for one post
var csvHeader = []string{
	"url",
	"date",
	"content",
	"username",
	"reply_count",
	"retweet_count",
	"like_count",
	"quote_count",
	"view_count",
	"conversation_id",
	"conversation_username",
	"in_reply_to_id",
	"in_reply_to_username",
	"quoted_id",
	"quoted_username",
	"retweeted_id",
	"retweeted_username",
}

// Exporter writes the posts attached to a set of jobs as flat CSV records
type Exporter struct {
	store *store.Store
}

// NewExporter creates a new exporter
func NewExporter(st *store.Store) *Exporter {
	return &Exporter{store: st}
}

// ExportJobs streams the posts of the given jobs to w as CSV
func (e *Exporter) ExportJobs(w io.Writer, jobIDs []uint) error {
	posts, err := e.store.PostsForJobs(jobIDs)
	if err != nil {
		return err
	}
	return WriteCSV(w, posts)
}

// WriteCSV writes posts as semicolon-separated records. Unresolved
// reply/conversation references leave their username column empty.
func WriteCSV(w io.Writer, posts []models.Post) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := range posts {
		p := &posts[i]
		username := ""
		if p.Author != nil {
			username = p.Author.Username
		}
		row := []string{
			p.TwitterURL(),
			p.PublishedAt.Format("2006-01-02 15:04:05"),
			p.Content,
			username,
			strconv.Itoa(p.ReplyCount),
			strconv.Itoa(p.RetweetCount),
			strconv.Itoa(p.LikeCount),
			strconv.Itoa(p.QuoteCount),
			strconv.Itoa(p.ViewCount),
			p.ConversationID,
			p.ConversationUsername(),
			p.InReplyToID,
			p.InReplyToUsername(),
			p.QuotedID,
			p.QuotedUsername(),
			p.RetweetedID,
			p.RetweetedUsername(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
