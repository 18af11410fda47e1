package models

import (
	"log"
	"os"
)

// InitializeTestDb points the package at a fresh sqlite db in a temp directory
func InitializeTestDb() {
	rootDir, err := os.MkdirTemp("", "tandem-test-")
	if err != nil {
		log.Panic(err)
	}

	err = AutoMigrate(DBConfig{PassPhrase: "test-passphrase", RootDir: rootDir})
	if err != nil {
		log.Panic(err)
	}
}
