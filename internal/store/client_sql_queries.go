// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

const (
	enqueueOutboxEntry = `
		INSERT INTO outbox (
			offline_client_id,
			entity_type,
			action,
			entity_uuid,
			declared_version,
			payload,
			status,
			attempts,
			created_at,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?);`

	outboxColumns = `
			offline_client_id,
			entity_type,
			action,
			entity_uuid,
			declared_version,
			payload,
			status,
			attempts,
			last_error,
			server_id,
			conflict_id,
			created_at,
			updated_at`

	getOutboxEntry = `SELECT` + outboxColumns + `
		FROM outbox
		WHERE offline_client_id = ?;`

	getPendingOutboxEntries = `SELECT` + outboxColumns + `
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at, offline_client_id
		LIMIT ?;`

	markOutboxSynced = `
		UPDATE outbox
		SET status = 'synced', server_id = ?, last_error = '', attempts = attempts + 1, updated_at = ?
		WHERE offline_client_id = ?;`

	markOutboxConflict = `
		UPDATE outbox
		SET status = 'conflict', conflict_id = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE offline_client_id = ?;`

	markOutboxFailed = `
		UPDATE outbox
		SET last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE offline_client_id = ?;`

	countOutboxByStatus = `
		SELECT status, COUNT(*)
		FROM outbox
		GROUP BY status;`

	insertPulledChange = `
		INSERT INTO pulled_changes (id, pulled_at)
		VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING;`

	// the feed carries every mutation; only newer versions replace local state
	upsertLocalEntity = `
		INSERT INTO local_entities (entity_uuid, entity_type, payload, version, deleted, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_uuid) DO UPDATE SET
			entity_type = excluded.entity_type,
			payload = excluded.payload,
			version = excluded.version,
			deleted = excluded.deleted,
			last_modified = excluded.last_modified
		WHERE excluded.version > local_entities.version;`

	getLocalEntity = `
		SELECT entity_uuid, entity_type, payload, version, deleted, last_modified
		FROM local_entities
		WHERE entity_uuid = ?;`

	getSyncState = `SELECT value FROM sync_state WHERE key = ?;`

	saveSyncState = `
		INSERT INTO sync_state (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value;`
)
