package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/source"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned feeds keyed by username or target post id
type fakeSource struct {
	timelines map[string][]source.SliceItem
	threads   map[string][]source.SliceItem
	openErr   error
}

func (f *fakeSource) PostsByAuthor(ctx context.Context, username string) (source.Iterator, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &source.SliceIterator{Items: f.timelines[username]}, nil
}

func (f *fakeSource) ThreadByPostID(ctx context.Context, externalID string) (source.Iterator, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &source.SliceIterator{Items: f.threads[externalID]}, nil
}

func TestRunnerTimelineEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")

	// Most recent first, as a timeline feed delivers them
	root := rawPost("100", author)
	reply := rawPost("101", author)
	reply.InReplyToID = "100"
	reply.ConversationID = "100"
	other := rawPost("102", author)

	src := &fakeSource{timelines: map[string][]source.SliceItem{
		"random_username": {
			{Post: other},
			{Post: reply},
			{Post: root},
		},
	}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	recorder := NewRecorder(st, log)
	var notified []uint
	runner := NewRunner(src, recorder, ledger, log, func(jobID uint) {
		notified = append(notified, jobID)
	})

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	assert.Equal(t, []uint{job.ID}, notified)
	assert.Contains(t, final.Log, "found 3 posts: 3 created, 0 updated")

	// The reply arrived before its root, so its reference is still
	// unresolved; it will be retried on the next save that touches it
	var stored models.Post
	require.NoError(t, db.Where("external_id = ?", "101").First(&stored).Error)
	assert.Equal(t, "100", stored.InReplyToID)
	assert.Nil(t, stored.InReplyToPostID)

	// Both roots spawn a conversation crawl; the reply does not
	var children []models.ScrapeJob
	require.NoError(t, db.Where("twitter_id <> ''").Find(&children).Error)
	require.Len(t, children, 2)
	targets := []string{children[0].TwitterID, children[1].TwitterID}
	assert.ElementsMatch(t, []string{"100", "102"}, targets)
}

func TestRunnerTimelineSinceBoundLookback(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")
	since := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	// A pinned post older than the bound sits at the top of the feed. It
	// must not stop the crawl; the bound only applies after the lookback.
	pinned := rawPost("90", author)
	pinned.PublishedAt = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	items := []source.SliceItem{{Post: pinned}}
	for i := 0; i < 6; i++ {
		p := rawPost(fmt.Sprintf("10%d", i), author)
		p.PublishedAt = time.Date(2023, 3, 20-i, 0, 0, 0, 0, time.UTC)
		items = append(items, source.SliceItem{Post: p})
	}
	old := rawPost("200", author)
	old.PublishedAt = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	never := rawPost("201", author)
	items = append(items, source.SliceItem{Post: old}, source.SliceItem{Post: never})

	src := &fakeSource{timelines: map[string][]source.SliceItem{"random_username": items}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, nil)

	job := models.ScrapeJob{Username: "random_username", Since: &since, Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	assert.Contains(t, final.Log, "scrape limit reached")

	// The pinned post was recorded despite predating the bound; the item
	// after the stop point was never seen
	var count int64
	db.Model(&models.Post{}).Where("external_id = ?", "90").Count(&count)
	assert.EqualValues(t, 1, count)
	db.Model(&models.Post{}).Where("external_id = ?", "201").Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestRunnerContainsItemErrors(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")

	invalid := rawPost("301", author)
	invalid.Content = ""

	src := &fakeSource{timelines: map[string][]source.SliceItem{
		"random_username": {
			{Post: rawPost("300", author)},
			{Err: &source.ItemError{ExternalID: "666", Err: errors.New("scrape failed")}},
			{Post: invalid},
			{Post: rawPost("302", author)},
		},
	}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, nil)

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	assert.Contains(t, final.Log, "skipping failed item")
	assert.Contains(t, final.Log, "validation error on post 301")

	var count int64
	db.Model(&models.Post{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestRunnerSkipsNilFeedItems(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")
	since := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	// A zero SliceItem yields (nil, nil); the crawl must step over it
	// rather than panic, even with a since bound in play
	src := &fakeSource{timelines: map[string][]source.SliceItem{
		"random_username": {
			{Post: rawPost("600", author)},
			{},
			{Post: rawPost("601", author)},
		},
	}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, nil)

	job := models.ScrapeJob{Username: "random_username", Since: &since, Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	assert.Contains(t, final.Log, "skipping empty feed item")
	assert.NotContains(t, final.Log, "panic")

	var count int64
	db.Model(&models.Post{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestRunnerFatalErrorInterrupts(t *testing.T) {
	db := setupTestDB(t)

	src := &fakeSource{openErr: errors.New("scraper unreachable")}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	var notified []uint
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, func(jobID uint) {
		notified = append(notified, jobID)
	})

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInterrupted, final.Status)
	assert.NotNil(t, final.FinishedAt)
	assert.Contains(t, final.Log, "interrupted: opening timeline feed")
	// Completion is reported even on failure
	assert.Equal(t, []uint{job.ID}, notified)
}

func TestRunnerMidFeedFatalErrorInterrupts(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")

	src := &fakeSource{timelines: map[string][]source.SliceItem{
		"random_username": {
			{Post: rawPost("400", author)},
			{Err: errors.New("feed stream broke")},
		},
	}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, nil)

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInterrupted, final.Status)

	// The post recorded before the failure stays recorded
	var count int64
	db.Model(&models.Post{}).Where("external_id = ?", "400").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRunnerThreadCrawl(t *testing.T) {
	db := setupTestDB(t)
	author := rawAuthor("999", "random_username")

	root := rawPost("500", author)
	replyA := rawPost("501", author)
	replyA.InReplyToID = "500"
	replyA.ConversationID = "500"
	replyB := rawPost("502", rawAuthor("998", "other_user"))
	replyB.InReplyToID = "501"
	replyB.ConversationID = "500"

	src := &fakeSource{threads: map[string][]source.SliceItem{
		"500": {{Post: root}, {Post: replyA}, {Post: replyB}},
	}}
	st := store.New(db)
	log := testLogger()
	ledger := NewRequestLedger(st, log)
	runner := NewRunner(src, NewRecorder(st, log), ledger, log, nil)

	job := models.ScrapeJob{
		Username:       "random_username",
		TwitterID:      "500",
		IncludeReplies: true,
		Status:         models.JobStatusCreated,
	}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	assert.Contains(t, final.Log, "found 3 posts: 3 created, 0 updated")

	// Thread crawls derive no further jobs
	var jobCount int64
	db.Model(&models.ScrapeJob{}).Count(&jobCount)
	assert.EqualValues(t, 1, jobCount)
}
