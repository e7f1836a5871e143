package calsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calendar"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/extract"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

var (
	tuesday  = time.Date(2025, time.November, 18, 9, 0, 0, 0, time.UTC)
	saturday = time.Date(2025, time.November, 22, 9, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAppt struct {
	card     calendar.CardFields
	overlay  calendar.Overlay
	cardErr  error
	hoverErr error
}

func booking(client, service, start, dateLine string) fakeAppt {
	timeRange := start + " - 11:00 am"
	return fakeAppt{
		card: calendar.CardFields{
			Client:     client,
			Service:    service,
			Specialist: "con Leslie",
			TimeRange:  timeRange,
			Background: "rgb(76, 175, 80)",
		},
		overlay: calendar.Overlay{
			Text:  client + "\n3001234567\n" + dateLine + "\n" + timeRange + "\nNueva reserva creada",
			Lines: []string{client, "3001234567", dateLine, timeRange, "Nueva reserva creada"},
		},
	}
}

// fakePage renders a list of weeks; OpenCalendar always returns to week 0.
type fakePage struct {
	weeks       [][]fakeAppt
	week        int
	opens       int
	listCalls   int
	listErr     error
	navErr      error
	panicOnCard bool
}

func (p *fakePage) OpenCalendar(ctx context.Context) error {
	p.opens++
	p.week = 0
	return nil
}

func (p *fakePage) VisibleEvents(ctx context.Context) ([]calendar.Event, error) {
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	if p.week >= len(p.weeks) {
		return nil, nil
	}
	events := make([]calendar.Event, len(p.weeks[p.week]))
	for i := range events {
		events[i] = calendar.Event{Index: i, NodeID: int64(p.week*100 + i)}
	}
	return events, nil
}

func (p *fakePage) appt(ev calendar.Event) fakeAppt {
	return p.weeks[p.week][ev.Index]
}

func (p *fakePage) CardFields(ctx context.Context, ev calendar.Event) (calendar.CardFields, error) {
	if p.panicOnCard && ev.Index == 0 {
		panic("stale node")
	}
	a := p.appt(ev)
	return a.card, a.cardErr
}

func (p *fakePage) Reveal(ctx context.Context, ev calendar.Event) (calendar.Overlay, error) {
	a := p.appt(ev)
	if a.hoverErr != nil {
		return calendar.Overlay{}, a.hoverErr
	}
	return a.overlay, nil
}

func (p *fakePage) NextWeek(ctx context.Context) error {
	if p.navErr != nil {
		return p.navErr
	}
	p.week++
	return nil
}

type memStore struct {
	mu      sync.Mutex
	rows    map[string]model.Appointment
	upserts int
	failFor string
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]model.Appointment{}}
}

func (s *memStore) Upsert(ctx context.Context, a model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Client == s.failFor {
		return errors.New("write conflict")
	}
	s.upserts++
	s.rows[a.Key().String()] = a
	return nil
}

func (s *memStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *memStore) Latest(ctx context.Context) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Appointment
	for _, a := range s.rows {
		a := a
		if latest == nil || a.LastSyncedAt.After(latest.LastSyncedAt) {
			latest = &a
		}
	}
	return latest, nil
}

type recordingNotifier struct {
	passIDs []string
	clients []string
}

func (n *recordingNotifier) AppointmentSynced(ctx context.Context, passID string, a model.Appointment) error {
	n.passIDs = append(n.passIDs, passID)
	n.clients = append(n.clients, a.Client)
	return nil
}

func newTestEngine(page *fakePage, store *memStore, now time.Time, notifier Notifier) *Engine {
	clock := func() time.Time { return now }
	return NewEngine(page, page, store, discardLogger(), EngineConfig{
		Extractor: extract.Extractor{
			Site:     "Marquetalia",
			Owner:    "Leslie gutierrez",
			Location: time.UTC,
			Now:      clock,
		},
		Notifier: notifier,
		Now:      clock,
	})
}
