// Package dialog identifies the accounts a star balance can belong to.
package dialog

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("dialog not found")
	ErrAmbiguousSender = errors.New("exactly one of user_id and chat_id must be set")
)

// Type is the kind of a dialog.
type Type int

const (
	TypeNone Type = iota
	TypeUser
	TypeChat // basic group
	TypeChannel
	TypeSecretChat
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeUser:
		return "user"
	case TypeChat:
		return "chat"
	case TypeChannel:
		return "channel"
	case TypeSecretChat:
		return "secret_chat"
	default:
		return "none"
	}
}

// ID addresses a user, group, channel or secret chat.
type ID struct {
	Type Type  `json:"type"`
	ID   int64 `json:"id"`
}

// UserID returns the dialog of a user.
func UserID(id int64) ID { return ID{Type: TypeUser, ID: id} }

// ChannelID returns the dialog of a channel or supergroup.
func ChannelID(id int64) ID { return ID{Type: TypeChannel, ID: id} }

// ChatID returns the dialog of a basic group.
func ChatID(id int64) ID { return ID{Type: TypeChat, ID: id} }

// IsValid reports whether the dialog has a known type and a positive id.
func (d ID) IsValid() bool {
	return d.Type != TypeNone && d.ID > 0
}

func (d ID) String() string {
	return fmt.Sprintf("%s %d", d.Type, d.ID)
}

// Sender is a caller-supplied owner reference: either a user or a chat.
type Sender struct {
	UserID int64 `json:"user_id,omitempty"`
	ChatID int64 `json:"chat_id,omitempty"`
}

// Validate checks that exactly one reference is set.
func (s Sender) Validate() error {
	if (s.UserID == 0) == (s.ChatID == 0) {
		return ErrAmbiguousSender
	}
	if s.UserID < 0 || s.ChatID < 0 {
		return fmt.Errorf("negative identifier in sender: %w", ErrNotFound)
	}
	return nil
}

// Resolver turns a caller-supplied sender reference into a known dialog.
// It fails with ErrNotFound when the dialog is unknown to the client.
type Resolver interface {
	ResolveSender(ctx context.Context, sender Sender) (ID, error)
}
