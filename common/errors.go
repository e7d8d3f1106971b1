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

package common

import (
	"errors"
	"fmt"
)

// ErrorCode stable relay failure code communicated to clients
type ErrorCode string

// Relay failure codes. These are part of the wire contract; clients key
// retry and backoff decisions off them.
const (
	// ErrorCodeCredentialNotFound the presented API key is unknown
	ErrorCodeCredentialNotFound ErrorCode = "CredentialNotFound"
	// ErrorCodeCredentialInactive the presented API key is administratively disabled
	ErrorCodeCredentialInactive ErrorCode = "CredentialInactive"
	// ErrorCodeTokenInvalid the presented session token failed verification
	ErrorCodeTokenInvalid ErrorCode = "TokenInvalid"
	// ErrorCodeTokenExpired the presented session token is past its expiry
	ErrorCodeTokenExpired ErrorCode = "TokenExpired"
	// ErrorCodeMembershipNotFound the token subject is no longer a member of the tenant
	ErrorCodeMembershipNotFound ErrorCode = "MembershipNotFound"
	// ErrorCodeTenantMismatch the supplied tenant ID does not match the key's owning tenant
	ErrorCodeTenantMismatch ErrorCode = "TenantMismatch"
	// ErrorCodeChannelForbidden the connection's scope does not permit the channel
	ErrorCodeChannelForbidden ErrorCode = "ChannelForbidden"
	// ErrorCodeConnectionTimeout the connection exceeded a liveness or operation deadline
	ErrorCodeConnectionTimeout ErrorCode = "ConnectionTimeout"
	// ErrorCodeTransportWriteFailure a write to the connection's transport failed
	ErrorCodeTransportWriteFailure ErrorCode = "TransportWriteFailure"
	// ErrorCodeInternalError any failure not covered by a more specific code
	ErrorCodeInternalError ErrorCode = "InternalError"
)

// RelayError a typed relay failure carrying a stable wire code
type RelayError struct {
	// Code is the stable failure code
	Code ErrorCode
	// Msg is a human readable description
	Msg string
	// Cause is the underlying error, if any
	Cause error
}

// Error implements error
func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Cause.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
}

// Unwrap expose the underlying error
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// NewRelayError define a new typed relay failure
func NewRelayError(code ErrorCode, msg string) error {
	return &RelayError{Code: code, Msg: msg}
}

// WrapRelayError define a new typed relay failure wrapping a cause
func WrapRelayError(code ErrorCode, msg string, cause error) error {
	return &RelayError{Code: code, Msg: msg, Cause: cause}
}

// CodeOfError read the failure code of an error. Untyped errors collapse to
// InternalError so implementation detail never leaks to clients.
func CodeOfError(err error) ErrorCode {
	var asRelayErr *RelayError
	if errors.As(err, &asRelayErr) {
		return asRelayErr.Code
	}
	return ErrorCodeInternalError
}
