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
	"errors"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
)

// ErrRecordNotFound the requested record does not exist in the record store
var ErrRecordNotFound = errors.New("record not found")

// APIKeyRecord one API key credential within the record store
type APIKeyRecord struct {
	// ID the credential's unique ID, distinct from the key material
	ID string `json:"id"`
	// TenantID the owning tenant
	TenantID string `json:"tenant_id"`
	// UserID the user the key was issued to
	UserID string `json:"user_id"`
	// DisplayName display metadata for dashboards
	DisplayName string `json:"display_name"`
	// Active whether the key is administratively enabled
	Active bool `json:"active"`
	// Scopes the permission scopes granted to the key
	Scopes []string `json:"scopes"`
}

// Membership one user's membership within a tenant
type Membership struct {
	// UserID the member
	UserID string `json:"user_id"`
	// TenantID the tenant
	TenantID string `json:"tenant_id"`
	// Role the member's role within the tenant
	Role string `json:"role"`
}

// AuthAuditEntry records the outcome of one connection authentication attempt
type AuthAuditEntry struct {
	// TenantID the resolved tenant, if known
	TenantID string `json:"tenant_id,omitempty"`
	// UserID the resolved user, if known
	UserID string `json:"user_id,omitempty"`
	// KeyID the credential ID, if the API key path was used
	KeyID string `json:"key_id,omitempty"`
	// Outcome "success" or "failure"
	Outcome string `json:"outcome"`
	// Reason the failure code, empty on success
	Reason string `json:"reason,omitempty"`
	// At when the attempt occurred
	At time.Time `json:"at"`
}

// RecordStore client for the external durable store of tenants, users,
// credentials, and events. The relay reads from it and records audit
// entries, nothing else; it never owns any of this state.
type RecordStore interface {
	// GetAPIKey look up an API key credential by key material
	GetAPIKey(ctxt context.Context, key string) (APIKeyRecord, error)
	// TouchAPIKeyUsage update the credential's "last used" timestamp
	TouchAPIKeyUsage(ctxt context.Context, keyID string, at time.Time) error
	// GetMembership look up a user's membership within a tenant
	GetMembership(ctxt context.Context, userID, tenantID string) (Membership, error)
	// ReplayEvents fetch events on a channel with cursor strictly after
	// sinceCursor, oldest first, at most limit entries
	ReplayEvents(
		ctxt context.Context, channel, sinceCursor string, limit int,
	) ([]common.Event, error)
	// RecordAuthAudit persist one authentication audit entry
	RecordAuthAudit(ctxt context.Context, entry AuthAuditEntry) error
	// Ready verify the store is reachable
	Ready(ctxt context.Context) error
}
