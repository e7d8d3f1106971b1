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
	"fmt"
	"strconv"
	"strings"
)

// Channel name scopes
const (
	// ChannelScopeOrg tenant scoped channels
	ChannelScopeOrg = "org"
	// ChannelScopeUser user scoped channels
	ChannelScopeUser = "user"
	// ChannelScopeKey API key scoped channels
	ChannelScopeKey = "key"
)

// Channel name topics
const (
	// ChannelTopicDecisions governance decision events
	ChannelTopicDecisions = "decisions"
	// ChannelTopicNotifications notification events
	ChannelTopicNotifications = "notifications"
	// ChannelTopicUsage credential usage events
	ChannelTopicUsage = "usage"
)

// ChannelName build a channel name of the form "{scope}:{scopeID}:{topic}"
func ChannelName(scope, scopeID, topic string) string {
	return fmt.Sprintf("%s:%s:%s", scope, scopeID, topic)
}

// ParseChannelName break a channel name into scope, scope ID, and topic.
// A name must have exactly three non-empty ":" separated segments.
func ParseChannelName(name string) (scope, scopeID, topic string, err error) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("channel name '%s' is not {scope}:{scopeId}:{topic}", name)
	}
	for _, part := range parts {
		if len(part) == 0 {
			return "", "", "", fmt.Errorf("channel name '%s' contains an empty segment", name)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// ValidateChannelName verify a channel name is well formed
func ValidateChannelName(name string) error {
	_, _, _, err := ParseChannelName(name)
	return err
}

// CompareCursors order two per-channel cursor values. Returns <0 if a
// precedes b, 0 if equal, >0 if a follows b. Cursors which both parse as
// unsigned integers compare numerically, anything else compares as strings.
func CompareCursors(a, b string) int {
	aNum, aErr := strconv.ParseUint(a, 10, 64)
	bNum, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
