package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControllerEnsureIsIdempotent(t *testing.T) {
	c := NewController()

	c.Ensure("t1")
	assert.False(t, c.IsCancelled("t1"))

	c.Cancel("t1")
	assert.True(t, c.IsCancelled("t1"))

	// Re-ensuring must not reset the flag: the job calls Ensure on
	// startup after a cancel may already have landed.
	c.Ensure("t1")
	assert.True(t, c.IsCancelled("t1"))
}

func TestControllerCancelBeforeEnsureSticks(t *testing.T) {
	c := NewController()

	c.Cancel("queued")
	assert.True(t, c.IsCancelled("queued"))
}

func TestControllerCleanupForgets(t *testing.T) {
	c := NewController()

	c.Cancel("t1")
	c.Cleanup("t1")

	assert.False(t, c.IsCancelled("t1"))
}

func TestControllerTrimsAndIgnoresBlankIDs(t *testing.T) {
	c := NewController()

	c.Ensure("  ")
	c.Cancel("")
	c.Cleanup(" ")
	assert.False(t, c.IsCancelled(""))
	assert.False(t, c.IsCancelled("   "))

	c.Cancel("  padded  ")
	assert.True(t, c.IsCancelled("padded"))
	assert.True(t, c.IsCancelled(" padded "))
}
