package gstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	cases := []struct {
		description string
		prefix      string
		filePath    string
		expected    string
	}{
		{"Should use base name without prefix", "", "/var/lib/tandem/db/tandem.db", "tandem.db"},
		{"Should join prefix", "backups", "/var/lib/tandem/db/tandem.db", "backups/tandem.db"},
		{"Should not double slashes", "backups/", "tandem.db", "backups/tandem.db"},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, ObjectName(tc.prefix, tc.filePath))
		})
	}
}
