//go:build integration

package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/testutil"
)

func TestPostgresStore_UsersRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	_, err := store.GetUser(ctx, 7)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, store.UpsertUsers(ctx, []api.User{{ID: 7, AccessHash: 70, Bot: true, FirstName: "shop"}}))
	require.NoError(t, store.UpsertUsers(ctx, []api.User{{ID: 7, AccessHash: 71, Bot: true, BotCanEdit: true, FirstName: "shop"}}))

	u, err := store.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, api.User{ID: 7, AccessHash: 71, Bot: true, BotCanEdit: true, FirstName: "shop"}, *u)
}

func TestPostgresStore_ChatsKeyedByKind(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertChats(ctx, []api.Chat{
		{Type: api.ChatTypeChannel, ID: 5, AccessHash: 55, Title: "news", Broadcast: true, Creator: true},
		{Type: api.ChatTypeChat, ID: 5, Title: "group"},
	}))

	ch, err := store.GetChat(ctx, dialog.ChannelID(5))
	require.NoError(t, err)
	assert.Equal(t, api.Chat{Type: api.ChatTypeChannel, ID: 5, AccessHash: 55, Title: "news", Broadcast: true, Creator: true}, *ch)

	group, err := store.GetChat(ctx, dialog.ChatID(5))
	require.NoError(t, err)
	assert.Equal(t, "group", group.Title)

	_, err = store.GetChat(ctx, dialog.ChannelID(6))
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestPostgresStore_BacksDirectory(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	d := New(NewPostgresStore(db), 1, false)
	ctx := context.Background()

	d.CommitChats(ctx, []api.Chat{{Type: api.ChatTypeChannel, ID: 9, Broadcast: true}})

	id, err := d.ResolveSender(ctx, dialog.Sender{ChatID: 9})
	require.NoError(t, err)
	assert.Equal(t, dialog.ChannelID(9), id)
}
