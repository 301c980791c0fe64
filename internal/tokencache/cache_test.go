package tokencache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unleash/unleash-edge/internal/token"
)

func TestInsert_IdempotentAndMonotone(t *testing.T) {
	c := New()
	tok := token.Parse("*:development.secretA")

	c.Insert(tok)
	got, ok := c.Lookup(tok.Raw)
	require.True(t, ok)
	assert.Equal(t, token.StatusUnknown, got.Status)

	c.Insert(tok.WithStatus(token.StatusValidated))
	got, ok = c.Lookup(tok.Raw)
	require.True(t, ok)
	assert.Equal(t, token.StatusValidated, got.Status)

	// Regression attempt is rejected.
	c.Insert(tok.WithStatus(token.StatusUnknown))
	got, ok = c.Lookup(tok.Raw)
	require.True(t, ok)
	assert.Equal(t, token.StatusValidated, got.Status, "Validated must not regress to Unknown")
}

func TestMarkInvalid_TTLExpiry(t *testing.T) {
	c := New()
	c.MarkInvalid("bad-token", 10*time.Millisecond)

	_, ok := c.Lookup("bad-token")
	require.True(t, ok, "should be invalid immediately")

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Lookup("bad-token")
	assert.False(t, ok, "expired invalid entry should look like a miss")
}

func TestMarkInvalid_ZeroTTLNeverExpires(t *testing.T) {
	c := New()
	c.MarkInvalid("bad-token", 0)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Lookup("bad-token")
	assert.True(t, ok)
}

func TestAll_ConsistentSnapshot(t *testing.T) {
	c := New()
	c.Insert(token.Parse("*:development.secretA"))
	c.Insert(token.Parse("*:production.secretB"))

	all := c.All()
	assert.Len(t, all, 2)
}

func TestInsert_InvalidIsTerminal(t *testing.T) {
	c := New()
	tok := token.Parse("*:development.secretA")
	c.Insert(tok.WithStatus(token.StatusInvalid))
	c.Insert(tok.WithStatus(token.StatusValidated))

	got, ok := c.Lookup(tok.Raw)
	require.True(t, ok)
	assert.Equal(t, token.StatusInvalid, got.Status)
}

func TestEnvironments_TracksTokenEnvironment(t *testing.T) {
	c := New()
	tok := token.Parse("*:development.secretA")
	c.Insert(tok)
	assert.Equal(t, []string{"development"}, c.Environments(tok.Raw))
}
