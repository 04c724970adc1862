package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	sentinel := NewError(KindForbidden, "nope")
	wrapped := fmt.Errorf("handler: %w", sentinel)

	assert.Equal(t, KindForbidden, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInvalidState, KindOf(NewInvalidStateError("draft", "confirmed")))
}

func TestNewPaginatedResult(t *testing.T) {
	res := NewPaginatedResult([]int{1, 2}, 41, 1, 20)
	assert.Equal(t, 3, res.TotalPages)

	empty := NewPaginatedResult([]int{}, 0, 1, 0)
	assert.Equal(t, 0, empty.TotalPages)
}
