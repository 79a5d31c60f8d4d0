package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "signaccess/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(3)

	for i := 0; i < 4; i++ {
		user := "alice"
		if i%2 == 1 {
			user = "bob"
		}
		require.NoError(t, store.Append(ctx, audit.Event{Action: fmt.Sprintf("a%d", i), Username: user}))
	}

	recent, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "a3", recent[0].Action)
	assert.Equal(t, "a1", recent[2].Action)

	alice, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "a2", alice[0].Action)

	none, err := store.ListByUser(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)

	two, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	store.Clear()
	recent, _ = store.ListRecent(ctx, 10)
	assert.Empty(t, recent)
}
