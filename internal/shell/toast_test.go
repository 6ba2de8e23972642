package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToasts_DeliversInOrder(t *testing.T) {
	toasts := NewToasts()
	toasts.Success("Welcome, kim!")
	toasts.Error("Something went wrong while logging out.")

	got := toasts.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, ToastSuccess, got[0].Kind)
	assert.Equal(t, "Welcome, kim!", got[0].Message)
	assert.Equal(t, ToastError, got[1].Kind)
	assert.Less(t, got[0].ID, got[1].ID)
	assert.Empty(t, toasts.Drain())
}

func TestToasts_DropsOldestWhenFull(t *testing.T) {
	toasts := NewToasts()
	for i := 0; i < toastBuffer+2; i++ {
		toasts.Success("toast")
	}

	got := toasts.Drain()
	require.Len(t, got, toastBuffer)
	assert.Equal(t, uint64(3), got[0].ID)
}
