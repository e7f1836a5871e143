package calsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calendar"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/extract"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/metrics"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

const (
	WeekCurrent = "current"
	WeekNext    = "next"
)

// Page is the calendar as the engine sees it. Implementations hold a single
// browser tab and are used by one pass at a time.
type Page interface {
	OpenCalendar(ctx context.Context) error
	VisibleEvents(ctx context.Context) ([]calendar.Event, error)
	CardFields(ctx context.Context, ev calendar.Event) (calendar.CardFields, error)
	NextWeek(ctx context.Context) error
}

// OverlayResolver hovers an element and returns the menu it opened. Reveals
// must run one at a time; an empty Overlay is a valid answer.
type OverlayResolver interface {
	Reveal(ctx context.Context, ev calendar.Event) (calendar.Overlay, error)
}

type Store interface {
	Upsert(ctx context.Context, a model.Appointment) error
	Count(ctx context.Context) (int64, error)
	Latest(ctx context.Context) (*model.Appointment, error)
}

type Notifier interface {
	AppointmentSynced(ctx context.Context, passID string, a model.Appointment) error
}

type EngineConfig struct {
	Extractor extract.Extractor
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Engine struct {
	page      Page
	overlays  OverlayResolver
	store     Store
	notifier  Notifier
	extractor extract.Extractor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

type PassSummary struct {
	Week      string             `json:"week"`
	Found     int                `json:"found"`
	Processed int                `json:"processed"`
	Skipped   int                `json:"skipped"`
	StoreSize int64              `json:"store_size"`
	Latest    *model.Appointment `json:"latest,omitempty"`
	Duration  time.Duration      `json:"duration_ns"`
}

type SyncResult struct {
	PassID      string        `json:"pass_id"`
	StartedAt   time.Time     `json:"started_at"`
	Passes      []PassSummary `json:"passes"`
	NextWeekErr string        `json:"next_week_error,omitempty"`
}

func NewEngine(page Page, overlays OverlayResolver, store Store, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		page:      page,
		overlays:  overlays,
		store:     store,
		notifier:  cfg.Notifier,
		extractor: cfg.Extractor,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       cfg.Now,
		tracer:    otel.Tracer("calendarsync/sync"),
	}
}

// SyncOnce reloads the calendar and syncs the displayed week. On Saturdays it
// also moves to the following week and syncs that; failures there are logged
// and do not affect the current-week result.
func (e *Engine) SyncOnce(ctx context.Context, passID string) (SyncResult, error) {
	started := e.now()
	res := SyncResult{PassID: passID, StartedAt: started}
	logger := e.logger.With("pass_id", passID)

	if err := e.page.OpenCalendar(ctx); err != nil {
		return res, err
	}

	cur, err := e.RunPass(ctx, passID, WeekCurrent)
	if err != nil {
		return res, fmt.Errorf("current week: %w", err)
	}
	res.Passes = append(res.Passes, cur)
	logger.Info("current week synced", "processed", cur.Processed)

	if started.Weekday() != time.Saturday {
		return res, nil
	}

	logger.Info("saturday: syncing next week as well")
	if err := e.page.NextWeek(ctx); err != nil {
		logger.Error("next week navigation failed", "err", err)
		res.NextWeekErr = err.Error()
		return res, nil
	}
	next, err := e.RunPass(ctx, passID, WeekNext)
	if err != nil {
		logger.Error("next week sync failed", "err", err)
		res.NextWeekErr = err.Error()
		return res, nil
	}
	res.Passes = append(res.Passes, next)
	logger.Info("next week synced", "processed", next.Processed)
	return res, nil
}

// RunPass syncs every visible element once, in document order. Only a failure
// to list the elements fails the pass; element failures are logged and skipped.
func (e *Engine) RunPass(ctx context.Context, passID, week string) (summary PassSummary, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "sync.pass", trace.WithAttributes(
		attribute.String("sync.pass_id", passID),
		attribute.String("sync.week", week),
	))
	logger := e.logger.With("pass_id", passID, "week", week)
	summary.Week = week

	defer func() {
		summary.Duration = time.Since(start)
		e.metrics.PassFinished(week, summary.Processed, summary.Duration, err)
		span.SetAttributes(
			attribute.Int("sync.found", summary.Found),
			attribute.Int("sync.processed", summary.Processed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	events, err := e.page.VisibleEvents(ctx)
	if err != nil {
		return summary, err
	}
	summary.Found = len(events)
	logger.Info("appointments visible", "count", len(events))

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if e.syncElement(ctx, logger, passID, ev) {
			summary.Processed++
		} else {
			summary.Skipped++
		}
	}

	e.report(ctx, logger, &summary)
	return summary, nil
}

func (e *Engine) syncElement(ctx context.Context, logger *slog.Logger, passID string, ev calendar.Event) (ok bool) {
	logger = logger.With("element", ev.Index)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("appointment element panicked", "panic", r)
			e.metrics.ElementSkipped("panic")
			ok = false
		}
	}()

	card, err := e.page.CardFields(ctx, ev)
	if err != nil {
		logger.Warn("reading appointment card failed", "err", err)
		e.metrics.ElementSkipped("card")
		return false
	}

	overlay, err := e.overlays.Reveal(ctx, ev)
	if err != nil {
		logger.Warn("reading appointment overlay failed, continuing without it", "err", err)
		overlay = calendar.Overlay{}
	} else if overlay.Empty() {
		logger.Debug("no overlay open after hover")
	}

	res, err := e.extractor.Extract(card, overlay)
	if errors.Is(err, extract.ErrMissingClient) {
		logger.Debug("element has no client, skipping")
		e.metrics.ElementSkipped("missing_client")
		return false
	}
	if err != nil {
		logger.Warn("extracting appointment failed", "err", err)
		e.metrics.ElementSkipped("extract")
		return false
	}

	appt := res.Appointment
	if res.Incomplete() {
		logger.Warn("could not build appointment time",
			"client", appt.Client,
			"date_line", res.DateLine,
			"start_time", res.StartText,
			"gaps", res.Gaps,
		)
	}

	if err := e.store.Upsert(ctx, appt); err != nil {
		logger.Error("storing appointment failed", "client", appt.Client, "err", err)
		e.metrics.ElementSkipped("store")
		return false
	}

	if e.notifier != nil {
		if err := e.notifier.AppointmentSynced(ctx, passID, appt); err != nil {
			logger.Warn("publishing appointment event failed", "client", appt.Client, "err", err)
		}
	}
	return true
}

// report fills in store diagnostics. Failures here are logged only.
func (e *Engine) report(ctx context.Context, logger *slog.Logger, summary *PassSummary) {
	size, err := e.store.Count(ctx)
	if err != nil {
		logger.Warn("counting stored appointments failed", "err", err)
	} else {
		summary.StoreSize = size
		e.metrics.StoreSize(size)
	}

	latest, err := e.store.Latest(ctx)
	if err != nil {
		logger.Warn("reading latest appointment failed", "err", err)
	}
	summary.Latest = latest

	attrs := []any{
		"found", summary.Found,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"store_size", summary.StoreSize,
	}
	if latest != nil {
		attrs = append(attrs,
			"latest_client", latest.Client,
			"latest_service", latest.Service,
			"latest_synced_at", latest.LastSyncedAt,
		)
	}
	logger.Info("pass completed", attrs...)
}
