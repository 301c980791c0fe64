package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Structured(t *testing.T) {
	tok := Parse("projA,projB:development.some-secret")
	require.True(t, tok.Structured)
	assert.Equal(t, "development", tok.Environment)
	assert.True(t, tok.Projects.Contains("projA"))
	assert.True(t, tok.Projects.Contains("projB"))
	assert.False(t, tok.Projects.Contains("projC"))
	assert.Equal(t, KindClient, tok.Kind)
}

func TestParse_Wildcard(t *testing.T) {
	tok := Parse("*:production.secretA")
	require.True(t, tok.Structured)
	assert.True(t, tok.Projects.IsWildcard())
	assert.True(t, tok.Projects.Contains("anything"))
}

func TestParse_OpaqueNeverErrors(t *testing.T) {
	for _, raw := range []string{"", "not-a-token", "missing-dot:noenv", ":.", "a:b"} {
		tok := Parse(raw)
		assert.False(t, tok.Structured, "raw=%q should be opaque", raw)
		assert.Equal(t, raw, tok.Raw)
	}
}

func TestParse_KindInference(t *testing.T) {
	assert.Equal(t, KindAdmin, Parse("*:env.admin-secret").Kind)
	assert.Equal(t, KindFrontend, Parse("*:env.frontend-secret").Kind)
	assert.Equal(t, KindClient, Parse("*:env.plain-secret").Kind)
}

func TestSubsumption_WildcardSubsumesFinite(t *testing.T) {
	wide := Parse("*:development.secretA")
	narrow := Parse("projA:development.secretB")
	assert.True(t, wide.Subsumes(narrow))
	assert.False(t, narrow.Subsumes(wide))
}

func TestSubsumption_RequiresSameEnvironmentAndKind(t *testing.T) {
	a := Parse("*:development.secretA")
	diffEnv := Parse("*:production.secretB")
	assert.False(t, a.Subsumes(diffEnv))

	client := Parse("*:development.secretA")
	frontend := Parse("*:development.frontend-secretB")
	assert.False(t, client.Subsumes(frontend))
}

func TestSubsumption_FiniteSupersetSubsumesSubset(t *testing.T) {
	wide := Parse("projA,projB,projC:development.secretA")
	narrow := Parse("projA,projB:development.secretB")
	assert.True(t, wide.Subsumes(narrow))
	assert.False(t, narrow.Subsumes(wide))
}

func TestSubsumption_OpaqueNeverSubsumes(t *testing.T) {
	opaque := Parse("not-structured")
	other := Parse("*:development.secretA")
	assert.False(t, opaque.Subsumes(other))
	assert.False(t, other.Subsumes(opaque))
}

func TestStatus_SupersedesMonotone(t *testing.T) {
	assert.True(t, StatusValidated.Supersedes(StatusUnknown))
	assert.False(t, StatusUnknown.Supersedes(StatusValidated))
	assert.True(t, StatusTrusted.Supersedes(StatusValidated))
	assert.False(t, StatusValidated.Supersedes(StatusInvalid))
	assert.False(t, StatusUnknown.Supersedes(StatusInvalid))
}

func TestProjectSet_SlicesAreSorted(t *testing.T) {
	p := NewProjectSet("zeta", "alpha", "mu")
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, p.Slice())
	assert.Nil(t, AllProjects().Slice())
}
