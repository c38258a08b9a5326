package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the service's tables. EnsureSchema applies it
// idempotently; the seed command and the integration tests both use it.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL UNIQUE,
	first_name      TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	role            TEXT NOT NULL,
	planka_user_id  TEXT
);

CREATE TABLE IF NOT EXISTS subsystems (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL,
	system_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rfcs (
	id                        BIGSERIAL PRIMARY KEY,
	title                     TEXT NOT NULL,
	description               TEXT NOT NULL DEFAULT '',
	implementation_date       TIMESTAMPTZ NOT NULL,
	urgency                   TEXT NOT NULL,
	status                    TEXT NOT NULL,
	requester_id              BIGINT NOT NULL REFERENCES users(id),
	planka_card_id            TEXT,
	planka_status_changed_at  TIMESTAMPTZ,
	deleted_at                TIMESTAMPTZ,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rfcs_planka_card_id ON rfcs(planka_card_id);

CREATE TABLE IF NOT EXISTS affected_subsystems (
	id                   BIGSERIAL PRIMARY KEY,
	rfc_id               BIGINT NOT NULL REFERENCES rfcs(id) ON DELETE CASCADE,
	subsystem_id         BIGINT NOT NULL REFERENCES subsystems(id),
	executor_id          BIGINT NOT NULL REFERENCES users(id),
	confirmation_status  TEXT NOT NULL DEFAULT 'PENDING',
	execution_status     TEXT NOT NULL DEFAULT 'PENDING',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_affected_subsystems_rfc_id ON affected_subsystems(rfc_id);

CREATE TABLE IF NOT EXISTS approvals (
	id           BIGSERIAL PRIMARY KEY,
	rfc_id       BIGINT NOT NULL REFERENCES rfcs(id) ON DELETE CASCADE,
	approver_id  BIGINT NOT NULL REFERENCES users(id),
	approved     BOOLEAN NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (rfc_id, approver_id)
);

CREATE TABLE IF NOT EXISTS status_changes (
	id                 BIGSERIAL PRIMARY KEY,
	subsystem_link_id  BIGINT NOT NULL,
	axis               TEXT NOT NULL,
	old_status         TEXT NOT NULL,
	new_status         TEXT NOT NULL,
	changed_by_id      BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_status_changes_link_id ON status_changes(subsystem_link_id);

CREATE TABLE IF NOT EXISTS rfc_snapshots (
	id                   BIGSERIAL PRIMARY KEY,
	rfc_id               BIGINT NOT NULL,
	operation            TEXT NOT NULL,
	changed_by_id        BIGINT,
	title                TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	implementation_date  TIMESTAMPTZ NOT NULL,
	urgency              TEXT NOT NULL,
	status               TEXT NOT NULL,
	attachment_ids       BIGINT[] NOT NULL DEFAULT '{}',
	subsystem_link_ids   BIGINT[] NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rfc_snapshots_rfc_id ON rfc_snapshots(rfc_id);

CREATE TABLE IF NOT EXISTS attachments (
	id                 BIGSERIAL PRIMARY KEY,
	rfc_id             BIGINT NOT NULL REFERENCES rfcs(id) ON DELETE CASCADE,
	original_filename  TEXT NOT NULL
);
`

// EnsureSchema creates the service's tables if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
