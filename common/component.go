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
	"context"

	"github.com/apex/log"
)

// Component base structure for a relay component
type Component struct {
	LogTags log.Fields
}

// RequestParam a helper object for logging a request's parameters into its context
type RequestParam struct {
	// ID is the request ID
	ID string `json:"id"`
	// Method is the request method: DELETE, POST, PUT, GET, etc.
	Method string `json:"method"`
	// URI is the request URI
	URI string `json:"uri"`
}

// UpdateLogTags given a context, update the log.Fields map with the request parameters
// stored within, if any.
func UpdateLogTags(ctxt context.Context, original log.Fields) (log.Fields, error) {
	result := log.Fields{}
	for k, v := range original {
		result[k] = v
	}
	if param, ok := ctxt.Value(RequestParam{}).(RequestParam); ok {
		result["request_id"] = param.ID
		result["request_method"] = param.Method
		result["request_uri"] = param.URI
	}
	return result, nil
}
