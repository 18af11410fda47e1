package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrDuplicateJob = errors.New("job with the given name already exists in queue")

type Job struct {
	BaseModel
	Fails       int        `json:"fails"`
	Name        string     `json:"name" gorm:"index"`
	Handler     string     `json:"handler"`
	Args        string     `json:"args"`
	LastError   string     `json:"last_error"`
	Claimed     bool       `json:"claimed" gorm:"default:false"`
	JobStatusID uint       `json:"job_status_id"`
	JobStatus   *JobStatus `json:"status,omitempty"`
}

// MarkAsClaimed moves an unclaimed job to in-progress. It returns false when
// another worker got to the job first.
func (job *Job) MarkAsClaimed() (bool, error) {
	inProgressStatus, err := FindJobStatus(IN_PROGRESS_JOB)
	if err != nil {
		return false, err
	}

	res := db.Model(&Job{}).Where("id = ? AND claimed = ?", job.ID, false).Updates(map[string]interface{}{
		"claimed":       true,
		"job_status_id": inProgressStatus.ID,
	})

	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (job *Job) Update(data map[string]interface{}) error {
	return db.Model(job).Updates(data).Error
}

// CreateUniqueJobByName enqueues a job unless one with the same name is
// already enqueued or in-progress, in which case ErrDuplicateJob is returned.
func CreateUniqueJobByName(name string, handler string, args string) error {
	queuedJobStatuses := []JobStatus{}
	err := db.Where("name IN ?", []string{ENQUEUED_JOB, IN_PROGRESS_JOB}).Find(&queuedJobStatuses).Error
	if err != nil {
		return err
	}

	var enqueuedJobStatus JobStatus
	statusIDs := []uint{}
	for _, jobStatus := range queuedJobStatuses {
		statusIDs = append(statusIDs, jobStatus.ID)
		if jobStatus.Name == ENQUEUED_JOB {
			enqueuedJobStatus = jobStatus
		}
	}

	var count int64
	err = db.Model(&Job{}).Where("name = ? AND job_status_id IN ?", name, statusIDs).Count(&count).Error
	if err != nil {
		return err
	}

	if count > 0 {
		return ErrDuplicateJob
	}

	return db.Create(&Job{
		Name:        name,
		Handler:     handler,
		Args:        args,
		JobStatusID: enqueuedJobStatus.ID,
	}).Error
}

// NextEnqueuedJob returns the oldest enqueued job that hasn't been claimed
func NextEnqueuedJob() (*Job, error) {
	job := Job{}
	err := db.Joins("INNER JOIN job_statuses ON job_statuses.id = jobs.job_status_id AND job_statuses.name = ?", ENQUEUED_JOB).
		Where("jobs.claimed = ?", false).Order("jobs.id asc").First(&job).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// StaleJob returns a job of 'status' that was last updated at least 'minutesAgo' minutes ago
func StaleJob(minutesAgo uint, status string) (*Job, error) {
	jobStatus, err := FindJobStatus(status)
	if err != nil {
		return nil, err
	}

	cutOff := time.Now().Add(-time.Duration(minutesAgo) * time.Minute)

	job := Job{}
	err = db.Where("job_status_id = ? AND updated_at <= ?", jobStatus.ID, cutOff).Order("id asc").First(&job).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func FindJob(id interface{}) (*Job, error) {
	job := Job{}
	err := db.Preload("JobStatus").First(&job, id).Error
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func CurrentJobsStats() (*JobsStats, error) {
	const JOIN_QUERY = "INNER JOIN job_statuses ON job_statuses.id = jobs.job_status_id AND job_statuses.name = ?"
	stats := JobsStats{}

	counts := map[string]*int64{
		ENQUEUED_JOB:    &stats.EnqueuedJobCount,
		IN_PROGRESS_JOB: &stats.InProgressJobCount,
		SUCCESSFUL_JOB:  &stats.SuccessfulJobCount,
		DEAD_JOB:        &stats.DeadJobCount,
	}

	for status, count := range counts {
		err := db.Joins(JOIN_QUERY, status).Model(&Job{}).Count(count).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return &stats, nil
}
