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
	"sync"
	"testing"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/mocks"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// recordingAudit collects audit entries for assertions
type recordingAudit struct {
	lock    sync.Mutex
	entries []storage.AuthAuditEntry
}

func (a *recordingAudit) Record(entry storage.AuthAuditEntry) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAudit) Start(wg *sync.WaitGroup) error { return nil }
func (a *recordingAudit) Stop() error                    { return nil }

func (a *recordingAudit) lastEntry() storage.AuthAuditEntry {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.entries[len(a.entries)-1]
}

const testTokenSecret = "unit-test-secret"

func signTestToken(t *testing.T, claims SessionTokenClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testTokenSecret))
	assert.Nil(t, err)
	return signed
}

func TestAuthenticateAPIKey(t *testing.T) {
	assert := assert.New(t)
	utCtxt := context.Background()

	mockStore := new(mocks.RecordStore)
	audit := &recordingAudit{}
	uut, err := GetAuthenticator(
		mockStore, []byte(testTokenSecret), time.Second, audit, "ut-authenticator",
	)
	assert.Nil(err)

	// Case 0: no credential at all
	{
		_, err := uut.Authenticate(utCtxt, Credential{})
		assert.Equal(common.ErrorCodeTokenInvalid, common.CodeOfError(err))
		assert.Equal("failure", audit.lastEntry().Outcome)
	}

	// Case 1: unknown key
	{
		mockStore.On("GetAPIKey", mock.Anything, "missing-key").Return(
			storage.APIKeyRecord{}, storage.ErrRecordNotFound,
		).Once()
		_, err := uut.Authenticate(utCtxt, Credential{APIKey: "missing-key"})
		assert.Equal(common.ErrorCodeCredentialNotFound, common.CodeOfError(err))
		assert.Equal(string(common.ErrorCodeCredentialNotFound), audit.lastEntry().Reason)
	}

	// Case 2: disabled key
	{
		mockStore.On("GetAPIKey", mock.Anything, "disabled-key").Return(
			storage.APIKeyRecord{
				ID: "K1", TenantID: "T1", UserID: "U1", Active: false,
			}, nil,
		).Once()
		_, err := uut.Authenticate(utCtxt, Credential{APIKey: "disabled-key"})
		assert.Equal(common.ErrorCodeCredentialInactive, common.CodeOfError(err))
	}

	// Case 3: tenant mismatch
	{
		mockStore.On("GetAPIKey", mock.Anything, "good-key").Return(
			storage.APIKeyRecord{
				ID: "K2", TenantID: "T1", UserID: "U1", Active: true,
			}, nil,
		).Once()
		_, err := uut.Authenticate(utCtxt, Credential{APIKey: "good-key", TenantID: "T2"})
		assert.Equal(common.ErrorCodeTenantMismatch, common.CodeOfError(err))
	}

	// Case 4: success
	{
		mockStore.On("GetAPIKey", mock.Anything, "good-key").Return(
			storage.APIKeyRecord{
				ID: "K2", TenantID: "T1", UserID: "U1", DisplayName: "CI key",
				Active: true, Scopes: []string{"decisions.read"},
			}, nil,
		).Once()
		mockStore.On("TouchAPIKeyUsage", mock.Anything, "K2", mock.Anything).Return(nil).Maybe()
		identity, err := uut.Authenticate(utCtxt, Credential{APIKey: "good-key", TenantID: "T1"})
		assert.Nil(err)
		assert.Equal("T1", identity.TenantID)
		assert.Equal("U1", identity.UserID)
		assert.Equal("K2", identity.KeyID)
		assert.Equal([]string{"decisions.read"}, identity.Scopes)
		assert.Equal("success", audit.lastEntry().Outcome)
		assert.Equal("K2", audit.lastEntry().KeyID)
	}
}

func TestAuthenticateSessionToken(t *testing.T) {
	assert := assert.New(t)
	utCtxt := context.Background()

	mockStore := new(mocks.RecordStore)
	audit := &recordingAudit{}
	uut, err := GetAuthenticator(
		mockStore, []byte(testTokenSecret), time.Second, audit, "ut-authenticator",
	)
	assert.Nil(err)

	// Case 1: garbage token
	{
		_, err := uut.Authenticate(utCtxt, Credential{SessionToken: "not-a-jwt"})
		assert.Equal(common.ErrorCodeTokenInvalid, common.CodeOfError(err))
	}

	// Case 2: wrong signing secret
	{
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionTokenClaims{
			StandardClaims: jwt.StandardClaims{
				Subject:   "U1",
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			},
			TenantID: "T1",
		})
		signed, signErr := token.SignedString([]byte("a-different-secret"))
		assert.Nil(signErr)
		_, err := uut.Authenticate(utCtxt, Credential{SessionToken: signed})
		assert.Equal(common.ErrorCodeTokenInvalid, common.CodeOfError(err))
	}

	// Case 3: expired token
	{
		signed := signTestToken(t, SessionTokenClaims{
			StandardClaims: jwt.StandardClaims{
				Subject:   "U1",
				ExpiresAt: time.Now().Add(-time.Hour).Unix(),
			},
			TenantID: "T1",
		})
		_, err := uut.Authenticate(utCtxt, Credential{SessionToken: signed})
		assert.Equal(common.ErrorCodeTokenExpired, common.CodeOfError(err))
	}

	// Case 4: missing tenant claim
	{
		signed := signTestToken(t, SessionTokenClaims{
			StandardClaims: jwt.StandardClaims{
				Subject:   "U1",
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			},
		})
		_, err := uut.Authenticate(utCtxt, Credential{SessionToken: signed})
		assert.Equal(common.ErrorCodeTokenInvalid, common.CodeOfError(err))
	}

	// Case 5: membership revoked
	{
		signed := signTestToken(t, SessionTokenClaims{
			StandardClaims: jwt.StandardClaims{
				Subject:   "U2",
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			},
			TenantID: "T1",
		})
		mockStore.On("GetMembership", mock.Anything, "U2", "T1").Return(
			storage.Membership{}, storage.ErrRecordNotFound,
		).Once()
		_, err := uut.Authenticate(utCtxt, Credential{SessionToken: signed})
		assert.Equal(common.ErrorCodeMembershipNotFound, common.CodeOfError(err))
	}

	// Case 6: success
	{
		signed := signTestToken(t, SessionTokenClaims{
			StandardClaims: jwt.StandardClaims{
				Subject:   "U1",
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			},
			TenantID:    "T1",
			Scopes:      []string{"decisions.read"},
			DisplayName: "Unit Tester",
		})
		mockStore.On("GetMembership", mock.Anything, "U1", "T1").Return(
			storage.Membership{UserID: "U1", TenantID: "T1", Role: "admin"}, nil,
		).Once()
		identity, err := uut.Authenticate(
			utCtxt, Credential{SessionToken: signed, TenantID: "T1"},
		)
		assert.Nil(err)
		assert.Equal("T1", identity.TenantID)
		assert.Equal("U1", identity.UserID)
		assert.Empty(identity.KeyID)
		assert.Equal("Unit Tester", identity.DisplayName)
		assert.Equal("success", audit.lastEntry().Outcome)
	}

	mockStore.AssertExpectations(t)
}
