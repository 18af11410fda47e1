package utils

import (
	"log"
	"os"
	"strings"
)

func FileExist(filePath string) bool {
	var err error

	if _, err = os.Stat(filePath); os.IsNotExist(err) {
		return false
	}

	if err != nil {
		log.Panic(err)
	}

	return true
}

func CreateDirIfNotExist(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}

	return nil
}

// NilIfEmpty returns nil for blank strings so optional columns stay NULL.
func NilIfEmpty(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

// Deref returns the value pointed to, or "" for nil.
func Deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
