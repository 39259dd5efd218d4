// Package audit records session lifecycle transitions.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by Timeline when no repository is wired.
var ErrNotConfigured = errors.New("audit: repository not configured")

// Repository persists session events.
type Repository interface {
	InsertEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Event, error)
}

// Recorder accepts session events.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Noop discards every event.
type Noop struct{}

// Record implements Recorder.
func (Noop) Record(context.Context, Event) {}

// Service writes events through a Repository and serves the activity timeline.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service. A nil repo yields a Service that drops events.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record stores ev, filling id, timestamp and request metadata. Failures are
// logged and swallowed.
func (s *Service) Record(ctx context.Context, ev Event) {
	if s == nil || s.repo == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	if meta, ok := MetaFromContext(ctx); ok {
		if ev.RemoteAddr == "" {
			ev.RemoteAddr = meta.RemoteAddr
		}
		if ev.UserAgent == "" {
			ev.UserAgent = meta.UserAgent
		}
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("audit record", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
	}
}

// Timeline returns one page of events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, ErrNotConfigured
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.ListEvents(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
