package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/Daskott/tandem/server/gstorage"
	"github.com/Daskott/tandem/server/models"
	"github.com/Daskott/tandem/server/twilio"
	"github.com/Daskott/tandem/server/work"
	"github.com/Daskott/tandem/shared"
)

const (
	NOTIFY_NEW_CONTACT_HANDLER = "notifyNewContact"
	BACKUP_SQLITE_DB_HANDLER   = "backupSqliteDb"
)

// jobRunner holds what the job handlers need
type jobRunner struct {
	sms          twilio.SMSSender
	storage      *gstorage.GStorage
	storageCfg   shared.StorageConfig
	sqliteDbPath string
}

// notifyNewContact texts a user that someone added them
func (jr *jobRunner) notifyNewContact(args map[string]interface{}) error {
	targetID := fmt.Sprint(args["target_owner_id"])
	requesterName := fmt.Sprint(args["requester_name"])

	user, err := models.FindUserBy("id", targetID)
	if err != nil {
		return err
	}

	if user.PhoneNumber == "" {
		return nil
	}

	return jr.sms.SendMessage(user.PhoneNumber, fmt.Sprintf("%s added you on tandem", requesterName))
}

// backupSqliteDb uploads the sqlite db file to google storage
func (jr *jobRunner) backupSqliteDb(map[string]interface{}) error {
	if jr.storage == nil {
		return errors.New("google storage is not configured")
	}

	return jr.storage.UploadFile(context.Background(),
		jr.storageCfg.Bucket, gstorage.ObjectName(jr.storageCfg.Prefix, jr.sqliteDbPath), jr.sqliteDbPath)
}

// pullSqliteDb restores the db from google storage when there's no local copy yet
func (jr *jobRunner) pullSqliteDb(ctx context.Context) error {
	err := jr.storage.DownloadFile(ctx,
		jr.storageCfg.Bucket, gstorage.ObjectName(jr.storageCfg.Prefix, jr.sqliteDbPath), jr.sqliteDbPath)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Info("No sqlite backup found in google storage, starting with a fresh db")
		return nil
	}

	return err
}

func (jr *jobRunner) register(wpa *work.WorkerPoolAdapter) error {
	if err := wpa.Register(NOTIFY_NEW_CONTACT_HANDLER, jr.notifyNewContact); err != nil {
		return err
	}

	return wpa.Register(BACKUP_SQLITE_DB_HANDLER, jr.backupSqliteDb)
}

func (jr *jobRunner) enqueuePeriodicJobs(wpa *work.WorkerPoolAdapter) error {
	if jr.storage == nil || !jr.storageCfg.EnableSqliteBackupAndSync {
		return nil
	}

	return wpa.PeriodicallyPerform(jr.storageCfg.SqliteBackupSchedule, work.JobParams{
		Name:    BACKUP_SQLITE_DB_HANDLER,
		Handler: BACKUP_SQLITE_DB_HANDLER,
		Args:    map[string]interface{}{},
	})
}

// jobNotifier enqueues a notifyNewContact job per new reciprocal contact. Job names
// are only unique among enqueued & in-progress jobs, so a pair linked again after
// a contact delete is notified again once the earlier job has finished.
type jobNotifier struct {
	workerPool *work.WorkerPoolAdapter
}

func (n jobNotifier) NotifyNewContact(_ context.Context, targetOwnerID uint, requester models.CardDetails) error {
	return n.workerPool.Perform(work.JobParams{
		Name:    fmt.Sprintf("%s-%d-%d", NOTIFY_NEW_CONTACT_HANDLER, requester.UserID, targetOwnerID),
		Handler: NOTIFY_NEW_CONTACT_HANDLER,
		Args: map[string]interface{}{
			"target_owner_id": targetOwnerID,
			"requester_name":  requester.Name,
		},
	})
}
