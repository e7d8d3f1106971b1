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

package apis

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterPathPrefix attaches per-method handlers under one end-point path,
// returning the subrouter for nested registration
func RegisterPathPrefix(
	parent *mux.Router, prefix string, handlers map[string]http.HandlerFunc,
) *mux.Router {
	sub := parent.PathPrefix(prefix).Subrouter()
	for method, handlerFunc := range handlers {
		sub.Path("").Methods(method).HandlerFunc(handlerFunc)
	}
	return sub
}
