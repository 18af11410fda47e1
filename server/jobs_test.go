package server

import (
	"context"
	"testing"

	"github.com/Daskott/tandem/server/auth/key"
	"github.com/Daskott/tandem/server/models"
	"github.com/Daskott/tandem/server/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to  string
	msg string
}

type recordingSMSSender struct {
	sent []sentMessage
}

func (s *recordingSMSSender) SendMessage(to, msg string) error {
	s.sent = append(s.sent, sentMessage{to: to, msg: msg})
	return nil
}

func TestNotifyNewContact(t *testing.T) {
	models.InitializeTestDb()
	authKeyPair = generateKeyPair(t, key.SESSION_KEY_ID)
	alan := createTestUser(t, "alan", "+12345678901")

	sender := &recordingSMSSender{}
	runner := &jobRunner{sms: sender}

	err := runner.notifyNewContact(map[string]interface{}{
		"target_owner_id": alan.user.ID,
		"requester_name":  "Ada Lovelace",
	})
	require.Nil(t, err)
	assert.Equal(t, []sentMessage{{to: "+12345678901", msg: "Ada Lovelace added you on tandem"}}, sender.sent)

	err = runner.notifyNewContact(map[string]interface{}{"target_owner_id": 9999, "requester_name": "Ada"})
	assert.Error(t, err, "unknown users fail the job")
	assert.Len(t, sender.sent, 1)
}

func TestJobNotifierEnqueuesOneJobPerPair(t *testing.T) {
	models.InitializeTestDb()
	notifier := jobNotifier{workerPool: work.NewWorkerAdapter("UTC")}
	requester := models.CardDetails{UserID: 1, Name: "Ada Lovelace", Email: "ada@example.com"}
	ctx := context.Background()

	require.Nil(t, notifier.NotifyNewContact(ctx, 2, requester))
	require.Nil(t, notifier.NotifyNewContact(ctx, 2, requester), "duplicates are dropped, not errors")
	require.Nil(t, notifier.NotifyNewContact(ctx, 3, requester))

	stats, err := models.CurrentJobsStats()
	require.Nil(t, err)
	assert.Equal(t, int64(2), stats.EnqueuedJobCount)

	job, err := models.NextEnqueuedJob()
	require.Nil(t, err)
	assert.Equal(t, NOTIFY_NEW_CONTACT_HANDLER, job.Handler)
	assert.Equal(t, "notifyNewContact-1-2", job.Name)
	assert.JSONEq(t, `{"target_owner_id": 2, "requester_name": "Ada Lovelace"}`, job.Args)

	successful, err := models.FindJobStatus(models.SUCCESSFUL_JOB)
	require.Nil(t, err)
	require.Nil(t, job.Update(map[string]interface{}{"job_status_id": successful.ID}))

	require.Nil(t, notifier.NotifyNewContact(ctx, 2, requester))
	stats, err = models.CurrentJobsStats()
	require.Nil(t, err)
	assert.Equal(t, int64(2), stats.EnqueuedJobCount, "a finished notice does not block the next one")
	assert.Equal(t, int64(1), stats.SuccessfulJobCount)
}
