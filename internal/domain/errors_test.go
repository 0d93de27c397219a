package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"checkin-sync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestFailure_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.WrapFailure(domain.ErrTransport, cause, "list members")

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "transport error: list members: connection refused", err.Error())
}

func TestFailure_Wrapped(t *testing.T) {
	err := fmt.Errorf("delete: %w", domain.NewFailure(domain.ErrConflict, "member %d is in an interview", 3))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "conflict", domain.KindName(err))
	assert.Equal(t, "member 3 is in an interview", domain.Message(err))
}

func TestKindNames(t *testing.T) {
	for _, kind := range []error{domain.ErrValidation, domain.ErrConflict, domain.ErrNotFound, domain.ErrTransport, domain.ErrChannel} {
		name := domain.KindName(kind)
		assert.NotEqual(t, "internal", name)
		assert.Equal(t, kind, domain.KindFromName(name))
	}
	assert.Equal(t, "internal", domain.KindName(errors.New("boom")))
	assert.Nil(t, domain.KindFromName("internal"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", domain.Message(nil))
	assert.Equal(t, "boom", domain.Message(errors.New("boom")))
}
