package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/calendarsync/libs/db"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

// PostgresRepository stores appointments in a single table. Absent time and
// date labels are stored as empty strings so the unique business-key
// constraint also covers them.
type PostgresRepository struct {
	pool  *db.Pool
	name  string
	table string
}

func NewPostgresRepository(pool *db.Pool, table string) *PostgresRepository {
	return &PostgresRepository{pool: pool, name: table, table: pgx.Identifier{table}.Sanitize()}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id             BIGSERIAL PRIMARY KEY,
			client         TEXT NOT NULL,
			service        TEXT NOT NULL,
			time_label     TEXT NOT NULL DEFAULT '',
			date_label     TEXT NOT NULL DEFAULT '',
			phone          BIGINT,
			specialist     TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL,
			scheduled_at   TIMESTAMPTZ,
			site           TEXT NOT NULL DEFAULT '',
			owner          TEXT NOT NULL DEFAULT '',
			color_tag      TEXT NOT NULL DEFAULT '',
			last_synced_at TIMESTAMPTZ NOT NULL,
			UNIQUE (client, service, time_label, date_label)
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (last_synced_at DESC);
	`, r.table, pgx.Identifier{r.name + "_last_synced_idx"}.Sanitize()))
	return err
}

func (r *PostgresRepository) Upsert(ctx context.Context, a model.Appointment) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s
			(client, service, time_label, date_label, phone, specialist, status, scheduled_at, site, owner, color_tag, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (client, service, time_label, date_label) DO UPDATE SET
			phone = EXCLUDED.phone,
			specialist = EXCLUDED.specialist,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			site = EXCLUDED.site,
			owner = EXCLUDED.owner,
			color_tag = EXCLUDED.color_tag,
			last_synced_at = EXCLUDED.last_synced_at
	`, r.table),
		a.Client, a.Service, labelColumn(a.TimeLabel), labelColumn(a.DateLabel),
		a.Phone, a.Specialist, string(a.Status), a.ScheduledAt,
		a.Site, a.Owner, a.ColorTag, a.LastSyncedAt,
	)
	return err
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&n)
	return n, err
}

func (r *PostgresRepository) Latest(ctx context.Context) (*model.Appointment, error) {
	var (
		a          model.Appointment
		timeLabel  string
		dateLabel  string
		status     string
		scheduleAt *time.Time
	)
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT client, service, time_label, date_label, phone, specialist, status, scheduled_at, site, owner, color_tag, last_synced_at
		FROM %s
		ORDER BY last_synced_at DESC
		LIMIT 1
	`, r.table)).Scan(
		&a.Client, &a.Service, &timeLabel, &dateLabel, &a.Phone, &a.Specialist, &status,
		&scheduleAt, &a.Site, &a.Owner, &a.ColorTag, &a.LastSyncedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.TimeLabel = labelValue(timeLabel)
	a.DateLabel = labelValue(dateLabel)
	a.Status = model.Status(status)
	a.ScheduledAt = scheduleAt
	return &a, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return db.ReadyCheck(r.pool)(ctx)
}

func labelColumn(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func labelValue(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
