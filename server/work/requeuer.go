package work

import (
	"errors"
	"time"

	"github.com/Daskott/tandem/colors"
	"github.com/Daskott/tandem/server/models"
	"gorm.io/gorm"
)

// STALE_JOB_MINUTES is how long a job may sit in-progress before it is
// assumed abandoned, e.g. by a worker that died mid-job
const STALE_JOB_MINUTES = 10

type requeuer struct {
	staleAfterMinutes uint
	stopChan          chan struct{}
}

func newRequeuer(staleAfterMinutes uint) *requeuer {
	return &requeuer{
		staleAfterMinutes: staleAfterMinutes,
		stopChan:          make(chan struct{}),
	}
}

// start runs the loop that moves stale in-progress jobs back to the queue
func (r *requeuer) start() {
	go r.loop()
}

func (r *requeuer) stop() {
	r.stopChan <- struct{}{}
}

func (r *requeuer) loop() {
	sleepBackOff := 30 * time.Second
	rateLimiter := time.NewTicker(DefaultTickerDuration)
	defer rateLimiter.Stop()

	logg.Infof("Starting stale job requeuer")
	for {
		select {
		case <-r.stopChan:
			logg.Infof("Stopping stale job requeuer")
			return
		case <-rateLimiter.C:
			if err := r.requeueNext(); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					rateLimiter.Reset(sleepBackOff)
					continue
				}

				r.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}
			rateLimiter.Reset(DefaultTickerDuration)
		}
	}
}

// requeueNext requeues the oldest stale in-progress job, if any
func (r *requeuer) requeueNext() error {
	job, err := models.StaleJob(r.staleAfterMinutes, models.IN_PROGRESS_JOB)
	if err != nil {
		return err
	}

	jobStatus, err := models.FindJobStatus(models.ENQUEUED_JOB)
	if err != nil {
		return err
	}

	err = job.Update(map[string]interface{}{
		"claimed":       false,
		"job_status_id": jobStatus.ID,
	})
	if err != nil {
		return err
	}

	r.logInfof("job with id=%v requeued", job.ID)
	return nil
}

func (r *requeuer) logInfof(template string, args ...interface{}) {
	prefix := colors.Yellow("[job requeuer] ")
	logg.Infof(prefix+template, args...)
}

func (r *requeuer) logError(err error) {
	prefix := colors.Red("[job requeuer] ")
	logg.Errorf("%s%v", prefix, err)
}
