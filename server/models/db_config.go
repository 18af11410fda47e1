package models

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	sqliteEncrypt "github.com/Daskott/gorm-sqlite-cipher"
	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/utils"
	pkgErrors "github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const DB_NAME = "tandem.db"

var logg = logger.NewLogger()
var db *gorm.DB

type DBConfig struct {
	// Driver is either "sqlite" (default) or "postgres"
	Driver     string
	DSN        string
	PassPhrase string
	RootDir    string
}

// AutoMigrate opens the db, migrates the schema and inserts seed data
func AutoMigrate(config DBConfig) error {
	err := openDB(config)
	if err != nil {
		return err
	}

	err = db.AutoMigrate(
		&Role{}, &JobStatus{}, &Job{},
		&User{}, &ContactCard{}, &Contact{},
	)
	if err != nil {
		return pkgErrors.Wrap(err, "AutoMigrate")
	}

	return populateDBWithSeedData()
}

// SqliteFilePath returns the location of the sqlite db file under rootDir
func SqliteFilePath(rootDir string) (string, error) {
	dbDir, err := DbDirectory(rootDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(dbDir, DB_NAME), nil
}

func DbDirectory(dbRootDir string) (string, error) {
	dbDir := filepath.Join(dbRootDir, "db")

	err := utils.CreateDirIfNotExist(dbDir)
	if err != nil {
		return "", err
	}

	return dbDir, nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func openDB(config DBConfig) error {
	var err error
	var dialector gorm.Dialector

	if config.Driver == "postgres" {
		dialector = postgres.Open(config.DSN)
	} else {
		dbDSNVal, err := sqliteDSN(config.PassPhrase, config.RootDir)
		if err != nil {
			return fmt.Errorf("failed to set sqlite DSN: %v", err)
		}
		dialector = sqliteEncrypt.Open(dbDSNVal)
	}

	db, err = gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				LogLevel:                  gormLogger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %v", err)
	}

	return nil
}

func populateDBWithSeedData() error {
	if err := db.First(&JobStatus{}).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		logg.Info("Inserting seed data into 'JobStatus'")
		err = db.Create(&[]JobStatus{{Name: ENQUEUED_JOB}, {Name: IN_PROGRESS_JOB}, {Name: SUCCESSFUL_JOB}, {Name: DEAD_JOB}}).Error
		if err != nil {
			return pkgErrors.Wrap(err, "seed JobStatus")
		}
	}

	if err := db.First(&Role{}).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		logg.Info("Inserting seed data into 'Role'")
		err = db.Create(&[]Role{{Name: ADMIN_USER_ROLE}, {Name: BASIC_USER_ROLE}}).Error
		if err != nil {
			return pkgErrors.Wrap(err, "seed Role")
		}
	}

	return nil
}

func sqliteDSN(passPhrase string, dbRootDir string) (string, error) {
	dbFilePath, err := SqliteFilePath(dbRootDir)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"file:%v?_pragma_key=%s&_pragma_cipher_page_size=4096&_journal_mode=WAL&_foreign_keys=1",
		dbFilePath,
		passPhrase,
	), nil
}
