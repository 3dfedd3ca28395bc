package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cargodesk/consotrack/internal/models"
)

type Repository interface {
	InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error
}

// Recorder пишет журнал изменений best-effort: сбой записи уходит в
// операционный лог и никогда не возвращается вызывающему — откатывать
// основную мутацию из-за журнала нельзя.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

type Change struct {
	EntityType  string
	EntityID    uint64
	Action      string
	PerformedBy string
	Description string

	// Снимки до/после; nil — снимка нет (create/delete одной стороны).
	Old any
	New any
}

func (r *Recorder) Record(ctx context.Context, ch Change) {
	if r == nil || r.repo == nil {
		return
	}

	entry := &models.AuditEntry{
		ID:          uuid.NewString(),
		EntityType:  ch.EntityType,
		EntityID:    ch.EntityID,
		Action:      ch.Action,
		PerformedBy: ch.PerformedBy,
		Description: ch.Description,
		CreatedAt:   time.Now().UTC(),
	}
	entry.OldValue = marshalSnapshot(ch.Old)
	entry.NewValue = marshalSnapshot(ch.New)

	if err := r.repo.InsertAuditEntry(ctx, entry); err != nil {
		slog.Error("audit write failed",
			"entity_type", ch.EntityType,
			"entity_id", ch.EntityID,
			"action", ch.Action,
			"error", err.Error())
	}
}

func marshalSnapshot(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
