package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unleash/unleash-edge/pkg/config"
)

func TestFromConfig_MapsAllThreeModes(t *testing.T) {
	cases := map[config.Mode]State{
		config.ModeOffline:     Offline,
		config.ModeEdgeStrict:  EdgeStrict,
		config.ModeEdgeDynamic: EdgeDynamic,
	}
	for cfgMode, want := range cases {
		got, err := FromConfig(cfgMode)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFromConfig_RejectsUnrecognizedMode(t *testing.T) {
	_, err := FromConfig(config.Mode("bogus"))
	assert.Error(t, err)
}

func TestAspectsFor_OfflineNeverContactsUpstreamOrPersists(t *testing.T) {
	a := AspectsFor(Offline)
	assert.False(t, a.ContactsUpstream)
	assert.True(t, a.BootstrapFileRequired)
	assert.False(t, a.AdmitsUnknownTokens)
	assert.False(t, a.SendsMetrics)
	assert.False(t, a.UsesPersistence)
}

func TestAspectsFor_StrictRejectsUnknownButContactsUpstream(t *testing.T) {
	a := AspectsFor(EdgeStrict)
	assert.True(t, a.ContactsUpstream)
	assert.False(t, a.BootstrapFileRequired)
	assert.False(t, a.AdmitsUnknownTokens)
	assert.True(t, a.SendsMetrics)
	assert.True(t, a.UsesPersistence)
}

func TestAspectsFor_DynamicAdmitsUnknownTokens(t *testing.T) {
	a := AspectsFor(EdgeDynamic)
	assert.True(t, a.ContactsUpstream)
	assert.True(t, a.AdmitsUnknownTokens)
	assert.True(t, a.SendsMetrics)
	assert.True(t, a.UsesPersistence)
}

func TestController_ExposesFixedStateAndAspects(t *testing.T) {
	c := New(EdgeDynamic)
	assert.Equal(t, EdgeDynamic, c.State())
	assert.True(t, c.AdmitsUnknownTokens())
	assert.True(t, c.ContactsUpstream())
	assert.True(t, c.SendsMetrics())
	assert.True(t, c.UsesPersistence())
	assert.False(t, c.RequiresBootstrapFile())
}

func TestState_StringIsHumanReadable(t *testing.T) {
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "edge-strict", EdgeStrict.String())
	assert.Equal(t, "edge-dynamic", EdgeDynamic.String())
}
