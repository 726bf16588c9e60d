// Package access decides whether the current account may manage the star
// balance of a dialog.
package access

import (
	"context"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/dialog"
)

// Denial reasons.
const (
	ReasonBotNotOwned    = "The bot isn't owned"
	ReasonNotChannel     = "Chat is not a channel"
	ReasonNotEnoughRight = "Not enough rights"
	ReasonUnallowedChat  = "Unallowed chat specified"
)

// Directory is the view of known users and channels the gate consults.
type Directory interface {
	MyUserID(ctx context.Context) int64
	User(ctx context.Context, id int64) (api.User, bool)
	Channel(ctx context.Context, id int64) (api.Chat, bool)
}

// Decision is the outcome of a check. It is computed per call and never cached.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil for an allowed decision and a 400 error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apierror.New(400, d.Reason)
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Gate evaluates management rights against a Directory.
type Gate struct {
	dir Directory
}

// NewGate creates a gate over dir.
func NewGate(dir Directory) *Gate {
	return &Gate{dir: dir}
}

// CanManage reports whether the caller may manage the stars of d. allowSelf
// admits the caller's own account and channels where the caller is not the
// creator.
func (g *Gate) CanManage(ctx context.Context, d dialog.ID, allowSelf bool) Decision {
	switch d.Type {
	case dialog.TypeUser:
		if allowSelf && d.ID == g.dir.MyUserID(ctx) {
			return allow()
		}
		if u, ok := g.dir.User(ctx, d.ID); ok && u.Bot && u.BotCanEdit {
			return allow()
		}
		return deny(ReasonBotNotOwned)
	case dialog.TypeChannel:
		ch, ok := g.dir.Channel(ctx, d.ID)
		if !ok || !ch.Broadcast {
			return deny(ReasonNotChannel)
		}
		if !ch.Creator && !allowSelf {
			return deny(ReasonNotEnoughRight)
		}
		return allow()
	default:
		return deny(ReasonUnallowedChat)
	}
}
