package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("assign driver: %w", Conflict("driver %s already assigned", "DL-1"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("bus missing"), http.StatusNotFound},
		{AlreadyExists("roll taken"), http.StatusConflict},
		{Conflict("held"), http.StatusConflict},
		{Capacity("full"), http.StatusConflict},
		{Validation("bad"), http.StatusBadRequest},
		{Upstream(errors.New("dial tcp"), "database unavailable"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(KindOf(tt.err).String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessage_HidesUpstreamCause(t *testing.T) {
	err := Upstream(errors.New("pq: password authentication failed"), "could not load bus")

	assert.Equal(t, "could not load bus", Message(err))
	assert.Contains(t, err.Error(), "password authentication failed")
	assert.Equal(t, "internal error", Message(errors.New("x")))
}
