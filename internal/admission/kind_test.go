package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"usic-gateway/internal/identity"
	"usic-gateway/internal/rolegate"
	"usic-gateway/internal/security/csrf"
)

func TestKind_Table(t *testing.T) {
	tests := []struct {
		kind      Kind
		code      string
		status    int
		retryable bool
	}{
		{KindRateLimitExceeded, "rate_limit_exceeded", http.StatusTooManyRequests, true},
		{KindCsrfTokenMissing, "csrf_token_missing", http.StatusForbidden, false},
		{KindCsrfTokenInvalid, "csrf_token_invalid", http.StatusForbidden, false},
		{KindIdentityTokenMissing, "identity_token_missing", http.StatusUnauthorized, false},
		{KindIdentityTokenInvalid, "identity_token_invalid", http.StatusUnauthorized, false},
		{KindIdentityTokenExpired, "identity_token_expired", http.StatusUnauthorized, false},
		{KindNotPrivileged, "not_privileged", http.StatusForbidden, false},
		{KindAuthorizationServiceUnavailable, "authorization_service_unavailable", http.StatusInternalServerError, true},
		{KindConfigurationError, "configuration_error", http.StatusInternalServerError, false},
		{KindInternal, "internal_error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.kind.String())
			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.retryable, tt.kind.Retryable())
			assert.NotEmpty(t, tt.kind.Message())
		})
	}

	assert.Equal(t, "internal_error", Kind(99).String(), "unknown kinds render as internal")
}

func TestComponentErrorMapping(t *testing.T) {
	assert.Equal(t, KindCsrfTokenMissing, csrfKind(csrf.ErrTokenMissing))
	assert.Equal(t, KindCsrfTokenInvalid, csrfKind(fmt.Errorf("%w: expired", csrf.ErrTokenInvalid)))

	assert.Equal(t, KindIdentityTokenMissing, identityKind(identity.ErrMissing))
	assert.Equal(t, KindIdentityTokenInvalid, identityKind(identity.ErrMalformed))
	assert.Equal(t, KindIdentityTokenInvalid, identityKind(identity.ErrRevoked))
	assert.Equal(t, KindIdentityTokenExpired, identityKind(identity.ErrExpired))
	assert.Equal(t, KindAuthorizationServiceUnavailable, identityKind(errors.New("boom")))

	assert.Equal(t, KindNotPrivileged, roleKind(rolegate.ErrNotPrivileged))
	assert.Equal(t, KindAuthorizationServiceUnavailable,
		roleKind(fmt.Errorf("%w: %w", rolegate.ErrRegistryUnavailable, context.DeadlineExceeded)))
}

func TestRejection_Error(t *testing.T) {
	cause := errors.New("registry down")
	rej := reject(KindAuthorizationServiceUnavailable, StageRole, cause)

	assert.ErrorIs(t, rej, cause)
	assert.Contains(t, rej.Error(), "role")
	assert.Contains(t, rej.Error(), "authorization_service_unavailable")
	assert.Equal(t, "admission rejected at csrf: csrf_token_missing", reject(KindCsrfTokenMissing, StageCSRF, nil).Error())
}
