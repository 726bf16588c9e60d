package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSender_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sender  Sender
		wantErr error
	}{
		{"user", Sender{UserID: 7}, nil},
		{"chat", Sender{ChatID: 9}, nil},
		{"both", Sender{UserID: 7, ChatID: 9}, ErrAmbiguousSender},
		{"neither", Sender{}, ErrAmbiguousSender},
		{"negative", Sender{UserID: -3}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sender.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestID(t *testing.T) {
	assert.True(t, UserID(1).IsValid())
	assert.False(t, ID{Type: TypeChannel}.IsValid())
	assert.False(t, ID{ID: 5}.IsValid())
	assert.Equal(t, "channel 42", ChannelID(42).String())
	assert.Equal(t, "chat", ChatID(1).Type.String())
}
