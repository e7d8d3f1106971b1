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
	"testing"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/stretchr/testify/assert"
)

func TestChannelAllowList(t *testing.T) {
	assert := assert.New(t)

	// Session token identity, no key channel
	{
		allowed := ChannelAllowList(common.Identity{TenantID: "T1", UserID: "U1"})
		assert.Equal([]string{
			"org:T1:decisions",
			"org:T1:notifications",
			"user:U1:notifications",
		}, allowed)
	}

	// API key identity additionally gets the key usage channel
	{
		allowed := ChannelAllowList(common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K9"})
		assert.Equal([]string{
			"org:T1:decisions",
			"org:T1:notifications",
			"user:U1:notifications",
			"key:K9:usage",
		}, allowed)
	}

	// Every served pattern parses under the channel grammar
	for _, allowed := range ChannelAllowList(
		common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K9"},
	) {
		assert.Nil(common.ValidateChannelName(allowed))
	}
}
