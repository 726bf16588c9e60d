package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/dialog"
)

// PostgresStore persists directory records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed directory store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) UpsertUsers(ctx context.Context, users []api.User) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO directory_users (id, access_hash, is_self, is_bot, bot_can_edit, first_name, username, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (id) DO UPDATE SET
					access_hash = EXCLUDED.access_hash,
					is_self = EXCLUDED.is_self,
					is_bot = EXCLUDED.is_bot,
					bot_can_edit = EXCLUDED.bot_can_edit,
					first_name = EXCLUDED.first_name,
					username = EXCLUDED.username,
					updated_at = NOW()`,
				u.ID, u.AccessHash, u.Self, u.Bot, u.BotCanEdit, u.FirstName, u.Username,
			)
			if err != nil {
				return fmt.Errorf("upsert user %d: %w", u.ID, err)
			}
		}
		return nil
	})
}

func (p *PostgresStore) UpsertChats(ctx context.Context, chats []api.Chat) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range chats {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO directory_chats (kind, id, access_hash, title, broadcast, megagroup, creator, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (kind, id) DO UPDATE SET
					access_hash = EXCLUDED.access_hash,
					title = EXCLUDED.title,
					broadcast = EXCLUDED.broadcast,
					megagroup = EXCLUDED.megagroup,
					creator = EXCLUDED.creator,
					updated_at = NOW()`,
				chatKind(c.DialogID()), c.ID, c.AccessHash, c.Title, c.Broadcast, c.Megagroup, c.Creator,
			)
			if err != nil {
				return fmt.Errorf("upsert chat %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (p *PostgresStore) GetUser(ctx context.Context, id int64) (*api.User, error) {
	var u api.User
	err := p.db.QueryRowContext(ctx, `
		SELECT id, access_hash, is_self, is_bot, bot_can_edit, first_name, username
		FROM directory_users WHERE id = $1`, id,
	).Scan(&u.ID, &u.AccessHash, &u.Self, &u.Bot, &u.BotCanEdit, &u.FirstName, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetChat(ctx context.Context, d dialog.ID) (*api.Chat, error) {
	kind := chatKind(d)
	if kind == "" {
		return nil, ErrChatNotFound
	}
	c := api.Chat{Type: kind}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, access_hash, title, broadcast, megagroup, creator
		FROM directory_chats WHERE kind = $1 AND id = $2`, kind, d.ID,
	).Scan(&c.ID, &c.AccessHash, &c.Title, &c.Broadcast, &c.Megagroup, &c.Creator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func chatKind(d dialog.ID) string {
	switch d.Type {
	case dialog.TypeChannel:
		return api.ChatTypeChannel
	case dialog.TypeChat:
		return api.ChatTypeChat
	}
	return ""
}
