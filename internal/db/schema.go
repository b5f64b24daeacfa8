package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Every statement is idempotent so repeated
// boots against the same database are safe.
var schema = []string{
	`create table if not exists users (
		id bigint generated always as identity primary key,
		username text not null unique,
		name text not null default '',
		nickname text,
		email text not null default '',
		password_hash text,
		is_admin boolean not null default false,
		gemini_api_key text,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now(),
		last_login_at timestamptz
	)`,
	`create table if not exists courses (
		id bigint generated always as identity primary key,
		name text not null,
		professor text not null default '',
		category text not null default '',
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create table if not exists archives (
		id bigint generated always as identity primary key,
		course_id bigint not null references courses(id) on delete cascade,
		uploader_id bigint not null references users(id),
		name text not null,
		archive_type text not null default 'other',
		academic_year int not null default 0,
		filename text not null,
		object_key text not null,
		content_type text not null default 'application/pdf',
		size_bytes bigint not null default 0,
		download_count bigint not null default 0,
		has_answers boolean not null default false,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create index if not exists idx_archives_course on archives(course_id, academic_year desc)`,
	`create table if not exists archive_discussion_messages (
		id bigint generated always as identity primary key,
		archive_id bigint not null references archives(id) on delete cascade,
		user_id bigint not null references users(id),
		content text not null,
		deleted boolean not null default false,
		created_at timestamptz not null default now()
	)`,
	`create index if not exists idx_discussion_archive on archive_discussion_messages(archive_id, id desc)`,
	`create table if not exists notifications (
		id bigint generated always as identity primary key,
		title text not null,
		content text not null default '',
		starts_at timestamptz not null default now(),
		ends_at timestamptz,
		created_at timestamptz not null default now()
	)`,
	`create table if not exists download_stats (
		archive_id bigint not null references archives(id) on delete cascade,
		country text not null default '',
		downloads bigint not null default 0,
		primary key (archive_id, country)
	)`,
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
