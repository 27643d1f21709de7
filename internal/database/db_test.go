package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSNAppliesPragmas(t *testing.T) {
	got := dsn("/var/data/sopmatch.db")

	assert.Contains(t, got, "/var/data/sopmatch.db?")
	// driver-recognized underscore parameters, not _pragma=... pairs
	assert.Contains(t, got, "_journal_mode=WAL")
	assert.Contains(t, got, "_synchronous=NORMAL")
	assert.Contains(t, got, "_foreign_keys=on")
	assert.Contains(t, got, "_busy_timeout=5000")
	assert.NotContains(t, got, "_pragma=")
}
