// Package audit records who changed what. Entries are append-only and
// written best-effort; an audit failure never fails the originating
// operation.
package audit

import (
	"log/slog"

	"github.com/opsboard/sopmatch/internal/database"
)

// Recorder writes audit entries through the repository.
type Recorder struct {
	repo *database.Repository
}

func NewRecorder(repo *database.Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends one entry. Failures are logged and swallowed.
func (r *Recorder) Record(actor, action, entity, before, after string) {
	entry := database.NewAuditEntry(actor, action, entity, before, after)
	if err := r.repo.InsertAudit(entry); err != nil {
		slog.Error("Failed to write audit entry", "action", action, "entity", entity, "error", err)
	}
}
