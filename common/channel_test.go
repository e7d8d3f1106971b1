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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNameParsing(t *testing.T) {
	assert := assert.New(t)

	{
		name := ChannelName(ChannelScopeOrg, "T123", ChannelTopicDecisions)
		assert.Equal("org:T123:decisions", name)
		scope, scopeID, topic, err := ParseChannelName(name)
		assert.Nil(err)
		assert.Equal(ChannelScopeOrg, scope)
		assert.Equal("T123", scopeID)
		assert.Equal(ChannelTopicDecisions, topic)
	}

	// Wrong segment count
	for _, name := range []string{"", "org", "org:T123", "org:T123:decisions:extra"} {
		assert.NotNil(ValidateChannelName(name))
	}

	// Empty segments
	for _, name := range []string{":T123:decisions", "org::decisions", "org:T123:"} {
		assert.NotNil(ValidateChannelName(name))
	}

	assert.Nil(ValidateChannelName("key:K4:usage"))
	assert.Nil(ValidateChannelName("user:U9:notifications"))
}

func TestCompareCursors(t *testing.T) {
	assert := assert.New(t)

	// Numeric ordering when both sides parse
	assert.Less(CompareCursors("2", "10"), 0)
	assert.Greater(CompareCursors("10", "2"), 0)
	assert.Equal(0, CompareCursors("42", "42"))

	// Lexical fallback otherwise
	assert.Less(CompareCursors("abc", "abd"), 0)
	assert.Greater(CompareCursors("9", "10a"), 0)
	assert.Equal(0, CompareCursors("cursor-a", "cursor-a"))
}
