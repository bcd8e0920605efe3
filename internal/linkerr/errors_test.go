package linkerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectionThroughWrapping(t *testing.T) {
	base := AuthWrap(ReasonTokenRefreshFailed, "refresh", errors.New("400"))
	wrapped := fmt.Errorf("sync strava: %w", base)

	ae, ok := AsAuth(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ReasonTokenRefreshFailed, ae.Reason)
	assert.True(t, HasReason(wrapped, ReasonTokenRefreshFailed))
	assert.False(t, HasReason(wrapped, ReasonMFARequired))
	assert.True(t, IsFatalForSync(wrapped))

	rl := fmt.Errorf("page 2: %w", RateLimited("rate limit exceeded"))
	assert.True(t, IsRateLimited(rl))
	assert.True(t, IsFatalForSync(rl))

	transient := API(502, "bad gateway")
	assert.False(t, IsFatalForSync(transient))
	assert.Contains(t, transient.Error(), "status 502")

	assert.True(t, IsValidation(fmt.Errorf("x: %w", Invalid("days", "out of range"))))
	assert.False(t, IsAuth(errors.New("plain")))
}
