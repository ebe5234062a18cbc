package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()

	assert.True(t, p.Enabled)
	assert.True(t, p.Sound)
	assert.False(t, p.Desktop)
	assert.False(t, p.Email)
	for _, typ := range Types {
		assert.True(t, p.Types[typ], typ)
	}
	for _, pr := range Priorities {
		assert.True(t, p.Priorities[pr], pr)
	}
}

func TestPreferencesMerge(t *testing.T) {
	p := DefaultPreferences()

	merged := p.Merge(PreferencesPatch{
		Sound: Bool(false),
		Types: map[Type]bool{TypeSystem: false},
	})

	assert.False(t, merged.Sound)
	assert.True(t, merged.Enabled)
	assert.False(t, merged.Types[TypeSystem])
	assert.True(t, merged.Types[TypeInfo], "other keys survive a partial map")
	assert.True(t, p.Types[TypeSystem], "receiver is not modified")
	assert.True(t, p.Sound)
}

func TestPreferencesAllows(t *testing.T) {
	n := Notification{Type: TypeMessage, Priority: PriorityLow}

	assert.True(t, DefaultPreferences().Allows(n))

	disabled := DefaultPreferences().Merge(PreferencesPatch{Enabled: Bool(false)})
	assert.False(t, disabled.Allows(n))
	assert.True(t, disabled.ShowsCategory(n), "master switch leaves categories alone")

	noMessages := DefaultPreferences().Merge(PreferencesPatch{Types: map[Type]bool{TypeMessage: false}})
	assert.False(t, noMessages.Allows(n))
	assert.False(t, noMessages.ShowsCategory(n))

	noLow := DefaultPreferences().Merge(PreferencesPatch{Priorities: map[Priority]bool{PriorityLow: false}})
	assert.False(t, noLow.Allows(n))

	sparse := Preferences{Enabled: true}
	assert.True(t, sparse.Allows(n), "missing toggles allow")
}

func TestPreferencesPatchJSON(t *testing.T) {
	var patch PreferencesPatch
	require.NoError(t, json.Unmarshal([]byte(`{"sound":false,"types":{"error":false}}`), &patch))

	require.NotNil(t, patch.Sound)
	assert.False(t, *patch.Sound)
	assert.Nil(t, patch.Enabled)
	assert.Equal(t, map[Type]bool{TypeError: false}, patch.Types)
}
