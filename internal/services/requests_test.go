package services

import (
	"strings"
	"testing"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerLifecycle(t *testing.T) {
	db := setupTestDB(t)
	st := store.New(db)
	ledger := NewRequestLedger(st, testLogger())

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))

	require.NoError(t, ledger.Start(&job))
	assert.Equal(t, models.JobStatusStarted, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)

	require.NoError(t, ledger.Finish(&job))
	assert.Equal(t, models.JobStatusFinished, job.Status)
	assert.NotNil(t, job.FinishedAt)

	// Start on a terminal job is a no-op
	require.NoError(t, ledger.Start(&job))
	assert.Equal(t, models.JobStatusFinished, job.Status)

	require.NoError(t, ledger.Reset(&job))
	assert.Equal(t, models.JobStatusCreated, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)

	// The cleared timestamps must survive a reload
	reloaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, reloaded.Status)
	assert.Nil(t, reloaded.StartedAt)
	assert.Nil(t, reloaded.FinishedAt)
}

func TestLedgerInterrupt(t *testing.T) {
	db := setupTestDB(t)
	st := store.New(db)
	ledger := NewRequestLedger(st, testLogger())

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))
	require.NoError(t, ledger.Start(&job))

	require.NoError(t, ledger.Interrupt(&job))
	assert.Equal(t, models.JobStatusInterrupted, job.Status)
	assert.NotNil(t, job.FinishedAt)
}

func TestLedgerAppendLog(t *testing.T) {
	db := setupTestDB(t)
	st := store.New(db)
	ledger := NewRequestLedger(st, testLogger())

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusCreated}
	require.NoError(t, st.CreateJob(&job))

	require.NoError(t, ledger.AppendLog(&job, "first line"))
	require.NoError(t, ledger.AppendLog(&job, "second line"))

	reloaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Contains(t, reloaded.Log, "first line\n")
	assert.Contains(t, reloaded.Log, "second line\n")
	assert.Less(t,
		strings.Index(reloaded.Log, "first line"),
		strings.Index(reloaded.Log, "second line"))
}

// seedRootPost records a conversation-root post under the given job
func seedRootPost(t *testing.T, recorder *Recorder, jobID uint, externalID string) {
	t.Helper()
	raw := rawPost(externalID, rawAuthor("999", "random_username"))
	_, _, err := recorder.Record(raw, &jobID)
	require.NoError(t, err)
}

func TestDeriveConversationJobs(t *testing.T) {
	db := setupTestDB(t)
	st := store.New(db)
	ledger := NewRequestLedger(st, testLogger())
	recorder := NewRecorder(st, testLogger())

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusFinished}
	require.NoError(t, st.CreateJob(&job))

	// Two roots and one reply; only the roots should spawn children
	seedRootPost(t, recorder, job.ID, "111")
	seedRootPost(t, recorder, job.ID, "112")
	reply := rawPost("113", rawAuthor("999", "random_username"))
	reply.InReplyToID = "111"
	reply.ConversationID = "111"
	_, _, err := recorder.Record(reply, &job.ID)
	require.NoError(t, err)

	created, err := ledger.DeriveConversationJobs(&job)
	require.NoError(t, err)
	require.Len(t, created, 2)
	targets := []string{created[0].TwitterID, created[1].TwitterID}
	assert.ElementsMatch(t, []string{"111", "112"}, targets)
	for _, child := range created {
		assert.Equal(t, "random_username", child.Username)
		assert.True(t, child.IncludeReplies)
		assert.Equal(t, models.JobStatusCreated, child.Status)
	}

	// A second derivation finds live children for every root and adds nothing
	again, err := ledger.DeriveConversationJobs(&job)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDeriveAfterInterruptedChild(t *testing.T) {
	db := setupTestDB(t)
	st := store.New(db)
	ledger := NewRequestLedger(st, testLogger())
	recorder := NewRecorder(st, testLogger())

	job := models.ScrapeJob{Username: "random_username", Status: models.JobStatusFinished}
	require.NoError(t, st.CreateJob(&job))
	seedRootPost(t, recorder, job.ID, "111")

	created, err := ledger.DeriveConversationJobs(&job)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Interrupting the child takes it out of the live set, so the next
	// derivation creates a second crawl for the same root
	child := created[0]
	require.NoError(t, ledger.Start(&child))
	require.NoError(t, ledger.Interrupt(&child))

	again, err := ledger.DeriveConversationJobs(&job)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "111", again[0].TwitterID)

	var total int64
	db.Model(&models.ScrapeJob{}).
		Where("twitter_id = ?", "111").
		Count(&total)
	assert.EqualValues(t, 2, total)
}
