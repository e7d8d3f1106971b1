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

import "github.com/Governs-AI/governsai-console-sub002/common"

// ChannelAllowList compute the exact set of channels an identity may
// subscribe to. Pure function of the identity, no I/O: tenant scoped
// decision and notification channels, the user's notification channel, and
// for API key connections the credential's usage channel.
func ChannelAllowList(identity common.Identity) []string {
	allowed := []string{
		common.ChannelName(
			common.ChannelScopeOrg, identity.TenantID, common.ChannelTopicDecisions,
		),
		common.ChannelName(
			common.ChannelScopeOrg, identity.TenantID, common.ChannelTopicNotifications,
		),
		common.ChannelName(
			common.ChannelScopeUser, identity.UserID, common.ChannelTopicNotifications,
		),
	}
	if len(identity.KeyID) > 0 {
		allowed = append(allowed, common.ChannelName(
			common.ChannelScopeKey, identity.KeyID, common.ChannelTopicUsage,
		))
	}
	return allowed
}

// ChannelPatterns the channel name patterns the relay serves, for the info
// endpoint.
func ChannelPatterns() []string {
	return []string{
		"org:{tenantId}:decisions",
		"org:{tenantId}:notifications",
		"user:{userId}:notifications",
		"key:{keyId}:usage",
	}
}
