// Copyright 2024-2025 The GovernsAI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/apex/log"
	"github.com/lib/pq"
)

// sqlRecordStore implements RecordStore against Postgres
type sqlRecordStore struct {
	common.Component
	db *sql.DB
}

// SQLConnectParams Postgres connection parameter
type SQLConnectParams struct {
	// DSN the Postgres connection string
	DSN string `validate:"required"`
	// MaxOpenConns cap on open connections, 0 is unlimited
	MaxOpenConns int
	// MaxIdleConns cap on idle connections
	MaxIdleConns int
	// ConnMaxLifetime max lifetime of one pooled connection
	ConnMaxLifetime time.Duration
}

// GetSQLRecordStore define a Postgres backed RecordStore
func GetSQLRecordStore(param SQLConnectParams, instance string) (RecordStore, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "sql-record-store",
		"instance":  instance,
	}
	db, err := sql.Open("postgres", param.DSN)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open record store")
		return nil, err
	}
	if param.MaxOpenConns > 0 {
		db.SetMaxOpenConns(param.MaxOpenConns)
	}
	if param.MaxIdleConns > 0 {
		db.SetMaxIdleConns(param.MaxIdleConns)
	}
	if param.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(param.ConnMaxLifetime)
	}
	log.WithFields(logTags).Info("Opened record store")
	return &sqlRecordStore{
		Component: common.Component{LogTags: logTags}, db: db,
	}, nil
}

// GetAPIKey look up an API key credential by key material
func (s *sqlRecordStore) GetAPIKey(ctxt context.Context, key string) (APIKeyRecord, error) {
	var record APIKeyRecord
	row := s.db.QueryRowContext(
		ctxt,
		`SELECT id, tenant_id, user_id, COALESCE(display_name, ''), active, scopes
		   FROM api_keys WHERE key = $1`,
		key,
	)
	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.UserID,
		&record.DisplayName,
		&record.Active,
		pq.Array(&record.Scopes),
	)
	if err == sql.ErrNoRows {
		return APIKeyRecord{}, ErrRecordNotFound
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("API key lookup failed")
		return APIKeyRecord{}, err
	}
	return record, nil
}

// TouchAPIKeyUsage update the credential's "last used" timestamp
func (s *sqlRecordStore) TouchAPIKeyUsage(
	ctxt context.Context, keyID string, at time.Time,
) error {
	_, err := s.db.ExecContext(
		ctxt, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Failed to record usage of key %s", keyID,
		)
	}
	return err
}

// GetMembership look up a user's membership within a tenant
func (s *sqlRecordStore) GetMembership(
	ctxt context.Context, userID, tenantID string,
) (Membership, error) {
	var membership Membership
	row := s.db.QueryRowContext(
		ctxt,
		`SELECT user_id, tenant_id, role FROM tenant_memberships
		  WHERE user_id = $1 AND tenant_id = $2 AND active`,
		userID,
		tenantID,
	)
	err := row.Scan(&membership.UserID, &membership.TenantID, &membership.Role)
	if err == sql.ErrNoRows {
		return Membership{}, ErrRecordNotFound
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Membership lookup failed")
		return Membership{}, err
	}
	return membership, nil
}

// ReplayEvents fetch events on a channel with cursor strictly after sinceCursor
func (s *sqlRecordStore) ReplayEvents(
	ctxt context.Context, channel, sinceCursor string, limit int,
) ([]common.Event, error) {
	since, err := strconv.ParseInt(sinceCursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("replay cursor '%s' is not numeric", sinceCursor)
	}
	rows, err := s.db.QueryContext(
		ctxt,
		`SELECT channel, cursor, payload, created_at FROM decision_events
		  WHERE channel = $1 AND cursor > $2 ORDER BY cursor ASC LIMIT $3`,
		channel,
		since,
		limit,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Replay query on %s failed", channel)
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Failed to close replay result")
		}
	}()
	events := []common.Event{}
	for rows.Next() {
		var cursor int64
		var payload []byte
		event := common.Event{}
		if err := rows.Scan(&event.Channel, &cursor, &payload, &event.Timestamp); err != nil {
			log.WithError(err).WithFields(s.LogTags).Errorf("Replay scan on %s failed", channel)
			return nil, err
		}
		event.Cursor = strconv.FormatInt(cursor, 10)
		event.Data = json.RawMessage(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// RecordAuthAudit persist one authentication audit entry
func (s *sqlRecordStore) RecordAuthAudit(ctxt context.Context, entry AuthAuditEntry) error {
	_, err := s.db.ExecContext(
		ctxt,
		`INSERT INTO auth_audit (tenant_id, user_id, key_id, outcome, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.TenantID,
		entry.UserID,
		entry.KeyID,
		entry.Outcome,
		entry.Reason,
		entry.At,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Failed to record auth audit entry")
	}
	return err
}

// Ready verify the store is reachable
func (s *sqlRecordStore) Ready(ctxt context.Context) error {
	return s.db.PingContext(ctxt)
}
