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

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/apex/log"
	"github.com/golang-jwt/jwt"
)

// Credential the credential material presented on connect. Exactly one of
// APIKey and SessionToken should be set; APIKey takes precedence.
type Credential struct {
	// APIKey raw API key material
	APIKey string
	// SessionToken signed session JWT
	SessionToken string
	// TenantID optional tenant the caller claims to operate under
	TenantID string
}

// SessionTokenClaims the claims embedded in a dashboard session token
type SessionTokenClaims struct {
	jwt.StandardClaims
	// TenantID the tenant the session was issued for
	TenantID string `json:"org"`
	// Scopes the session's permission scopes
	Scopes []string `json:"scopes,omitempty"`
	// DisplayName display metadata for dashboards
	DisplayName string `json:"name,omitempty"`
}

// Authenticator resolves connection credentials against the record store
type Authenticator interface {
	// Authenticate resolve a credential to an identity, or a typed failure
	Authenticate(ctxt context.Context, cred Credential) (common.Identity, error)
}

// authenticatorImpl implements Authenticator
type authenticatorImpl struct {
	common.Component
	store        storage.RecordStore
	tokenSecret  []byte
	storeTimeout time.Duration
	audit        AuditRecorder
}

// GetAuthenticator define a new connection authenticator
func GetAuthenticator(
	store storage.RecordStore,
	tokenSecret []byte,
	storeTimeout time.Duration,
	audit AuditRecorder,
	instance string,
) (Authenticator, error) {
	logTags := log.Fields{
		"module":    "auth",
		"component": "authenticator",
		"instance":  instance,
	}
	return &authenticatorImpl{
		Component:    common.Component{LogTags: logTags},
		store:        store,
		tokenSecret:  tokenSecret,
		storeTimeout: storeTimeout,
		audit:        audit,
	}, nil
}

// Authenticate resolve a credential to an identity, or a typed failure
func (a *authenticatorImpl) Authenticate(
	ctxt context.Context, cred Credential,
) (common.Identity, error) {
	var identity common.Identity
	var err error
	switch {
	case len(cred.APIKey) > 0:
		identity, err = a.authenticateAPIKey(ctxt, cred)
	case len(cred.SessionToken) > 0:
		identity, err = a.authenticateSessionToken(ctxt, cred)
	default:
		err = common.NewRelayError(common.ErrorCodeTokenInvalid, "no credential presented")
	}

	entry := storage.AuthAuditEntry{
		TenantID: identity.TenantID,
		UserID:   identity.UserID,
		KeyID:    identity.KeyID,
		Outcome:  "success",
		At:       time.Now().UTC(),
	}
	if err != nil {
		entry.Outcome = "failure"
		entry.Reason = string(common.CodeOfError(err))
	}
	a.audit.Record(entry)

	if err != nil {
		return common.Identity{}, err
	}
	return identity, nil
}

// authenticateAPIKey the API key credential path
func (a *authenticatorImpl) authenticateAPIKey(
	ctxt context.Context, cred Credential,
) (common.Identity, error) {
	lookupCtxt, cancel := context.WithTimeout(ctxt, a.storeTimeout)
	defer cancel()
	record, err := a.store.GetAPIKey(lookupCtxt, cred.APIKey)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return common.Identity{}, common.NewRelayError(
				common.ErrorCodeCredentialNotFound, "unknown API key",
			)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.WithError(err).WithFields(a.LogTags).Error("API key lookup timed out")
			return common.Identity{}, common.WrapRelayError(
				common.ErrorCodeConnectionTimeout, "credential lookup timed out", err,
			)
		}
		log.WithError(err).WithFields(a.LogTags).Error("API key lookup failed")
		return common.Identity{}, common.WrapRelayError(
			common.ErrorCodeInternalError, "credential lookup failed", err,
		)
	}
	if !record.Active {
		return common.Identity{}, common.NewRelayError(
			common.ErrorCodeCredentialInactive, "API key is disabled",
		)
	}
	if len(cred.TenantID) > 0 && cred.TenantID != record.TenantID {
		return common.Identity{}, common.NewRelayError(
			common.ErrorCodeTenantMismatch, "API key belongs to a different tenant",
		)
	}

	// Usage recording is best-effort. A failure here never fails the
	// authentication itself.
	go func() {
		touchCtxt, touchCancel := context.WithTimeout(context.Background(), a.storeTimeout)
		defer touchCancel()
		if err := a.store.TouchAPIKeyUsage(touchCtxt, record.ID, time.Now().UTC()); err != nil {
			log.WithError(err).WithFields(a.LogTags).Warnf(
				"Failed to record usage of key %s", record.ID,
			)
		}
	}()

	return common.Identity{
		TenantID:    record.TenantID,
		UserID:      record.UserID,
		KeyID:       record.ID,
		DisplayName: record.DisplayName,
		Scopes:      record.Scopes,
	}, nil
}

// authenticateSessionToken the session token credential path
func (a *authenticatorImpl) authenticateSessionToken(
	ctxt context.Context, cred Credential,
) (common.Identity, error) {
	claims := SessionTokenClaims{}
	_, err := jwt.ParseWithClaims(
		cred.SessionToken, &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, common.NewRelayError(
					common.ErrorCodeTokenInvalid, "unexpected token signing method",
				)
			}
			return a.tokenSecret, nil
		},
	)
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) &&
			validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return common.Identity{}, common.WrapRelayError(
				common.ErrorCodeTokenExpired, "session token expired", err,
			)
		}
		return common.Identity{}, common.WrapRelayError(
			common.ErrorCodeTokenInvalid, "session token verification failed", err,
		)
	}
	if len(claims.Subject) == 0 || len(claims.TenantID) == 0 {
		return common.Identity{}, common.NewRelayError(
			common.ErrorCodeTokenInvalid, "session token missing subject or tenant",
		)
	}
	if len(cred.TenantID) > 0 && cred.TenantID != claims.TenantID {
		return common.Identity{}, common.NewRelayError(
			common.ErrorCodeTenantMismatch, "session token belongs to a different tenant",
		)
	}

	lookupCtxt, cancel := context.WithTimeout(ctxt, a.storeTimeout)
	defer cancel()
	membership, err := a.store.GetMembership(lookupCtxt, claims.Subject, claims.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return common.Identity{}, common.NewRelayError(
				common.ErrorCodeMembershipNotFound, "user is not a member of the tenant",
			)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.WithError(err).WithFields(a.LogTags).Error("Membership lookup timed out")
			return common.Identity{}, common.WrapRelayError(
				common.ErrorCodeConnectionTimeout, "membership lookup timed out", err,
			)
		}
		log.WithError(err).WithFields(a.LogTags).Error("Membership lookup failed")
		return common.Identity{}, common.WrapRelayError(
			common.ErrorCodeInternalError, "membership lookup failed", err,
		)
	}

	return common.Identity{
		TenantID:    membership.TenantID,
		UserID:      membership.UserID,
		DisplayName: claims.DisplayName,
		Scopes:      claims.Scopes,
	}, nil
}
