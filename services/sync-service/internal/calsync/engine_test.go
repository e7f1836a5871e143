package calsync

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

const (
	dateTue = "martes, 18 de noviembre/2025"
	dateWed = "miércoles, 19 de noviembre/2025"
	dateMon = "lunes, 24 de noviembre/2025"
)

func TestSyncOnce_Idempotent(t *testing.T) {
	page := &fakePage{weeks: [][]fakeAppt{{
		booking("Ana Pérez", "Manicure", "8:45 am", dateTue),
		booking("Luisa Gómez", "Pedicure", "10:00 am", dateWed),
	}}}
	store := newMemStore()
	engine := newTestEngine(page, store, tuesday, nil)

	for i := 0; i < 2; i++ {
		if _, err := engine.SyncOnce(context.Background(), "pass"); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
	}
	if len(store.rows) != 2 {
		t.Fatalf("stored = %d, want 2", len(store.rows))
	}
	if store.upserts != 4 {
		t.Fatalf("upserts = %d, want 4", store.upserts)
	}
	if page.opens != 2 {
		t.Fatalf("calendar opened %d times, want 2", page.opens)
	}
}

func TestRunPass_CollapsesSameBusinessKey(t *testing.T) {
	first := booking("Ana Pérez", "Manicure", "8:45 am", dateTue)
	second := booking("Ana Pérez", "Manicure", "8:45 am", dateTue)
	second.card.Background = "rgb(244, 67, 54)"
	second.overlay.Lines[4] = "Cita cancelada"
	second.overlay.Text = "Ana Pérez\nCita cancelada"

	page := &fakePage{weeks: [][]fakeAppt{{first, second}}}
	store := newMemStore()
	engine := newTestEngine(page, store, tuesday, nil)

	summary, err := engine.RunPass(context.Background(), "pass", WeekCurrent)
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 2 || summary.StoreSize != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, a := range store.rows {
		if a.Status != model.StatusCancelled || a.ColorTag != "rgb(244, 67, 54)" {
			t.Fatalf("last write did not win: %+v", a)
		}
	}
}

func TestRunPass_SkipsMissingClient(t *testing.T) {
	page := &fakePage{weeks: [][]fakeAppt{{
		booking("Ana Pérez", "Manicure", "8:45 am", dateTue),
		booking("   ", "Bloqueo", "9:00 am", dateTue),
		booking("Luisa Gómez", "Pedicure", "10:00 am", dateWed),
	}}}
	store := newMemStore()
	notifier := &recordingNotifier{}
	engine := newTestEngine(page, store, tuesday, notifier)

	summary, err := engine.RunPass(context.Background(), "p-1", WeekCurrent)
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Found != 3 || summary.Processed != 2 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(notifier.clients) != 2 || notifier.clients[1] != "Luisa Gómez" {
		t.Fatalf("notified = %v", notifier.clients)
	}
	if notifier.passIDs[0] != "p-1" {
		t.Fatalf("pass id = %q", notifier.passIDs[0])
	}
	if summary.Latest == nil {
		t.Fatalf("expected latest appointment in summary")
	}
}

func TestRunPass_ElementFailuresAreIsolated(t *testing.T) {
	broken := booking("Marta Ruiz", "Cejas", "9:00 am", dateTue)
	broken.cardErr = errors.New("node detached")
	noOverlay := booking("Sofía Díaz", "Manicure", "11:00 am", dateTue)
	noOverlay.hoverErr = errors.New("mouse event failed")

	page := &fakePage{weeks: [][]fakeAppt{{
		booking("Ana Pérez", "Manicure", "8:45 am", dateTue),
		broken,
		noOverlay,
		booking("Rejected Write", "Pedicure", "12:00 pm", dateTue),
	}}}
	store := newMemStore()
	store.failFor = "Rejected Write"
	engine := newTestEngine(page, store, tuesday, nil)

	summary, err := engine.RunPass(context.Background(), "pass", WeekCurrent)
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 2 || summary.Skipped != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	var sofia *model.Appointment
	for _, a := range store.rows {
		if a.Client == "Sofía Díaz" {
			a := a
			sofia = &a
		}
	}
	if sofia == nil {
		t.Fatalf("appointment without overlay was not stored")
	}
	if sofia.DateLabel != nil || sofia.ScheduledAt != nil || sofia.Phone != nil {
		t.Fatalf("overlay fields should be absent: %+v", sofia)
	}
	if sofia.TimeLabel == nil || *sofia.TimeLabel != "11:00 am" {
		t.Fatalf("time label = %v", sofia.TimeLabel)
	}
}

func TestRunPass_RecoversElementPanic(t *testing.T) {
	page := &fakePage{
		weeks: [][]fakeAppt{{
			booking("Ana Pérez", "Manicure", "8:45 am", dateTue),
			booking("Luisa Gómez", "Pedicure", "10:00 am", dateWed),
		}},
		panicOnCard: true,
	}
	store := newMemStore()
	engine := newTestEngine(page, store, tuesday, nil)

	summary, err := engine.RunPass(context.Background(), "pass", WeekCurrent)
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestSyncOnce_ListFailureFailsPass(t *testing.T) {
	page := &fakePage{listErr: errors.New("calendar not rendered")}
	engine := newTestEngine(page, newMemStore(), tuesday, nil)

	if _, err := engine.SyncOnce(context.Background(), "pass"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSyncOnce_OnePassOnWeekdays(t *testing.T) {
	page := &fakePage{weeks: [][]fakeAppt{
		{booking("Ana Pérez", "Manicure", "8:45 am", dateTue)},
		{booking("Luisa Gómez", "Pedicure", "10:00 am", dateMon)},
	}}
	engine := newTestEngine(page, newMemStore(), tuesday, nil)

	res, err := engine.SyncOnce(context.Background(), "pass")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Passes) != 1 || page.listCalls != 1 || page.week != 0 {
		t.Fatalf("passes = %d, list calls = %d, week = %d", len(res.Passes), page.listCalls, page.week)
	}
}

func TestSyncOnce_SaturdaySyncsNextWeek(t *testing.T) {
	page := &fakePage{weeks: [][]fakeAppt{
		{booking("Ana Pérez", "Manicure", "8:45 am", dateTue)},
		{booking("Luisa Gómez", "Pedicure", "10:00 am", dateMon)},
	}}
	store := newMemStore()
	engine := newTestEngine(page, store, saturday, nil)

	res, err := engine.SyncOnce(context.Background(), "pass")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Passes) != 2 || res.Passes[0].Week != WeekCurrent || res.Passes[1].Week != WeekNext {
		t.Fatalf("passes = %+v", res.Passes)
	}
	if len(store.rows) != 2 {
		t.Fatalf("stored = %d, want 2", len(store.rows))
	}
	if res.Passes[1].StoreSize != 2 {
		t.Fatalf("store size after next week = %d", res.Passes[1].StoreSize)
	}

	// The next tick starts from the current week again.
	if _, err := engine.SyncOnce(context.Background(), "pass-2"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if page.opens != 2 || len(store.rows) != 2 {
		t.Fatalf("opens = %d, stored = %d", page.opens, len(store.rows))
	}
}

func TestSyncOnce_NextWeekNavigationFailureKeepsCurrentWeek(t *testing.T) {
	page := &fakePage{
		weeks:  [][]fakeAppt{{booking("Ana Pérez", "Manicure", "8:45 am", dateTue)}},
		navErr: errors.New("button not found"),
	}
	store := newMemStore()
	engine := newTestEngine(page, store, saturday, nil)

	res, err := engine.SyncOnce(context.Background(), "pass")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Passes) != 1 || res.NextWeekErr == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(store.rows) != 1 {
		t.Fatalf("current week not stored")
	}
}
