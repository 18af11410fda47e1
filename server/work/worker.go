package work

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Daskott/tandem/colors"
	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/server/metrics"
	"github.com/Daskott/tandem/server/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MAX_FAILS = 4

var (
	DefaultTickerDuration = 5 * time.Millisecond
	TickerDurationOnError = 10 * time.Millisecond

	ErrDuplicateHandler = errors.New("handler with provided name already mapped")
	ErrUnknownHandler   = errors.New("no handler registered for job")

	logg = logger.Named("work")
)

type JobParams struct {
	Name    string
	Handler string
	Args    map[string]interface{}
}

type Handler func(map[string]interface{}) error

type worker struct {
	id                     string
	handlers               map[string]Handler
	stopChan               chan struct{}
	sleepBackoffsInSeconds []int64
}

func newWorker(sleepBackoffsInSeconds []int64) *worker {
	return &worker{
		id:                     uuid.NewString()[:8],
		handlers:               make(map[string]Handler),
		stopChan:               make(chan struct{}),
		sleepBackoffsInSeconds: sleepBackoffsInSeconds,
	}
}

func (w *worker) registerHandler(name string, handler Handler) error {
	if _, ok := w.handlers[name]; ok {
		return ErrDuplicateHandler
	}

	w.handlers[name] = handler
	return nil
}

func (w *worker) start() {
	go w.loop()
}

func (w *worker) stop() {
	w.stopChan <- struct{}{}
}

func (w *worker) loop() {
	var consecutiveNoJobs int64

	sleepBackoffs := w.sleepBackoffsInSeconds
	rateLimiter := time.NewTicker(DefaultTickerDuration)
	defer rateLimiter.Stop()

	logg.Infof("Starting worker %s", w.id)
	for {
		select {
		case <-w.stopChan:
			logg.Infof("Stopping worker %s", w.id)
			return
		case <-rateLimiter.C:
			job, err := models.NextEnqueuedJob()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Back off slowly while the queue stays empty
				consecutiveNoJobs++
				idx := consecutiveNoJobs
				if idx >= int64(len(sleepBackoffs)) {
					idx = int64(len(sleepBackoffs)) - 1
				}
				rateLimiter.Reset(time.Duration(sleepBackoffs[idx]) * time.Second)
				continue
			}

			if err != nil {
				w.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			claimed, err := job.MarkAsClaimed()
			if err != nil {
				w.logError(err)
				rateLimiter.Reset(TickerDurationOnError)
				continue
			}

			if !claimed {
				continue
			}

			w.logInfof("claimed job with id=%v, handler=%v", job.ID, job.Handler)
			w.processJob(job)
			rateLimiter.Reset(DefaultTickerDuration)
			consecutiveNoJobs = 0
		}
	}
}

func (w *worker) processJob(job *models.Job) {
	err := w.run(job)
	if err != nil {
		w.logError(err)
		w.determineFailedJobFate(job, err)
		return
	}

	w.markJobAsSuccessful(job)
}

func (w *worker) run(job *models.Job) (err error) {
	handler, ok := w.handlers[job.Handler]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandler, job.Handler)
	}

	args := make(map[string]interface{})
	if err := json.Unmarshal([]byte(job.Args), &args); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", job.Handler, r)
		}
	}()

	return handler(args)
}

// determineFailedJobFate requeues a failed job, or buries it once it has failed MAX_FAILS times
func (w *worker) determineFailedJobFate(job *models.Job, runError error) {
	job.Fails++

	status := models.ENQUEUED_JOB
	if job.Fails >= MAX_FAILS {
		status = models.DEAD_JOB
	}

	jobStatus, err := models.FindJobStatus(status)
	if err != nil {
		w.logError(err)
		return
	}

	err = job.Update(map[string]interface{}{
		"claimed":       false,
		"job_status_id": jobStatus.ID,
		"fails":         job.Fails,
		"last_error":    runError.Error(),
	})
	if err != nil {
		w.logError(err)
	}

	metrics.JobsProcessed.WithLabelValues(job.Handler, jobStatus.Name).Inc()
	w.logInfof("job with id=%v completed with status=%v", job.ID, jobStatus.Name)
}

func (w *worker) markJobAsSuccessful(job *models.Job) {
	jobStatus, err := models.FindJobStatus(models.SUCCESSFUL_JOB)
	if err != nil {
		w.logError(err)
		return
	}

	err = job.Update(map[string]interface{}{
		"claimed":       false,
		"job_status_id": jobStatus.ID,
	})
	if err != nil {
		w.logError(err)
	}

	metrics.JobsProcessed.WithLabelValues(job.Handler, jobStatus.Name).Inc()
	w.logInfof("job with id=%v completed with status=%v", job.ID, jobStatus.Name)
}

func (w *worker) logInfof(template string, args ...interface{}) {
	prefix := colors.Yellow(fmt.Sprintf("[worker %v] ", w.id))
	logg.Infof(prefix+template, args...)
}

func (w *worker) logError(err error) {
	prefix := colors.Red(fmt.Sprintf("[worker %v] ", w.id))
	logg.Errorf("%s%v", prefix, err)
}
