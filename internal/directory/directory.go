// Package directory caches the users and chats the client has seen and
// answers the lookups the star operations need: sender resolution, access
// checks, input peers and the bot flags used while decoding.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/logging"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrChatNotFound = errors.New("chat not found")
)

// Store persists user and chat records.
type Store interface {
	UpsertUsers(ctx context.Context, users []api.User) error
	UpsertChats(ctx context.Context, chats []api.Chat) error
	GetUser(ctx context.Context, id int64) (*api.User, error)
	GetChat(ctx context.Context, d dialog.ID) (*api.Chat, error)
}

// Directory is the caller's view of known users and chats.
type Directory struct {
	store    Store
	myUserID int64
	isBot    bool
}

// New creates a directory for the account myUserID.
func New(store Store, myUserID int64, isBot bool) *Directory {
	return &Directory{store: store, myUserID: myUserID, isBot: isBot}
}

// MyUserID returns the id of the calling account.
func (d *Directory) MyUserID(context.Context) int64 { return d.myUserID }

// CallerIsBot reports whether the calling account is a bot.
func (d *Directory) CallerIsBot() bool { return d.isBot }

// User returns a known user. Store failures are logged and reported as unknown.
func (d *Directory) User(ctx context.Context, id int64) (api.User, bool) {
	u, err := d.store.GetUser(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			logging.L(ctx).Warn("user lookup failed", "user_id", id, "error", err)
		}
		return api.User{}, false
	}
	return *u, true
}

// Channel returns a known channel or supergroup.
func (d *Directory) Channel(ctx context.Context, id int64) (api.Chat, bool) {
	return d.chat(ctx, dialog.ChannelID(id))
}

func (d *Directory) chat(ctx context.Context, id dialog.ID) (api.Chat, bool) {
	c, err := d.store.GetChat(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrChatNotFound) {
			logging.L(ctx).Warn("chat lookup failed", "dialog", id.String(), "error", err)
		}
		return api.Chat{}, false
	}
	return *c, true
}

// ResolveSender maps a user or chat reference to a known dialog.
func (d *Directory) ResolveSender(ctx context.Context, s dialog.Sender) (dialog.ID, error) {
	if err := s.Validate(); err != nil {
		return dialog.ID{}, err
	}
	if s.UserID != 0 {
		if s.UserID == d.myUserID {
			return dialog.UserID(s.UserID), nil
		}
		if _, ok := d.User(ctx, s.UserID); ok {
			return dialog.UserID(s.UserID), nil
		}
		return dialog.ID{}, fmt.Errorf("user %d: %w", s.UserID, dialog.ErrNotFound)
	}
	for _, id := range []dialog.ID{dialog.ChannelID(s.ChatID), dialog.ChatID(s.ChatID)} {
		if _, ok := d.chat(ctx, id); ok {
			return id, nil
		}
	}
	return dialog.ID{}, fmt.Errorf("chat %d: %w", s.ChatID, dialog.ErrNotFound)
}

// InputPeer returns the wire reference of a dialog, or false when the client
// has no access to it.
func (d *Directory) InputPeer(ctx context.Context, id dialog.ID) (api.InputPeer, bool) {
	switch id.Type {
	case dialog.TypeUser:
		if id.ID == d.myUserID {
			return api.InputPeer{Type: "inputPeerSelf"}, true
		}
		if u, ok := d.User(ctx, id.ID); ok {
			return api.InputPeer{Type: "inputPeerUser", UserID: u.ID, AccessHash: u.AccessHash}, true
		}
	case dialog.TypeChannel:
		if c, ok := d.chat(ctx, id); ok {
			return api.InputPeer{Type: "inputPeerChannel", ChannelID: c.ID, AccessHash: c.AccessHash}, true
		}
	case dialog.TypeChat:
		if _, ok := d.chat(ctx, id); ok {
			return api.InputPeer{Type: "inputPeerChat", ChatID: id.ID}, true
		}
	}
	return api.InputPeer{}, false
}

// InputUser returns the wire reference of a user.
func (d *Directory) InputUser(ctx context.Context, id int64) (api.InputUser, bool) {
	u, ok := d.User(ctx, id)
	if !ok {
		return api.InputUser{}, false
	}
	return api.InputUser{UserID: u.ID, AccessHash: u.AccessHash}, true
}

// CommitUsers stores user records received in a response.
func (d *Directory) CommitUsers(ctx context.Context, users []api.User) {
	if len(users) == 0 {
		return
	}
	if err := d.store.UpsertUsers(ctx, users); err != nil {
		logging.L(ctx).Error("failed to commit users", "count", len(users), "error", err)
	}
}

// CommitChats stores chat records received in a response.
func (d *Directory) CommitChats(ctx context.Context, chats []api.Chat) {
	if len(chats) == 0 {
		return
	}
	if err := d.store.UpsertChats(ctx, chats); err != nil {
		logging.L(ctx).Error("failed to commit chats", "count", len(chats), "error", err)
	}
}
