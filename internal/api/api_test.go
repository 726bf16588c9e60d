package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/starledger/internal/dialog"
)

func TestEncode_FlagOnlyFieldsStayOutOfBody(t *testing.T) {
	p, err := Encode(GetStarsTransactions{
		Inbound:   true,
		Ascending: true,
		Peer:      InputPeer{Type: "inputPeerChannel", ChannelID: 5, AccessHash: 9},
		Limit:     20,
	})
	require.NoError(t, err)

	assert.Equal(t, "payments.getStarsTransactions", p.Method)
	assert.Equal(t, GetStarsTransactionsInbound|GetStarsTransactionsAscending, p.Flags)

	var body map[string]any
	require.NoError(t, json.Unmarshal(p.Body, &body))
	assert.NotContains(t, body, "Inbound")
	assert.NotContains(t, body, "inbound")
	assert.Contains(t, body, "peer")
	assert.EqualValues(t, 20, body["limit"])
}

func TestEncode_NoOptionalFields(t *testing.T) {
	p, err := Encode(GetStarsRevenueStats{Peer: InputPeer{Type: "inputPeerSelf"}})
	require.NoError(t, err)
	assert.Zero(t, p.Flags)

	p, err = Encode(GetStarsRevenueStats{Dark: true, Peer: InputPeer{Type: "inputPeerSelf"}})
	require.NoError(t, err)
	assert.Equal(t, GetStarsRevenueStatsDark, p.Flags)
}

func TestPeer_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want dialog.ID
	}{
		{"user", `{"@type":"peerUser","user_id":12}`, dialog.UserID(12)},
		{"chat", `{"@type":"peerChat","chat_id":3}`, dialog.ChatID(3)},
		{"channel", `{"@type":"peerChannel","channel_id":77}`, dialog.ChannelID(77)},
		{"unknown", `{"@type":"peerSomethingNew","id":1}`, dialog.ID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Peer
			require.NoError(t, json.Unmarshal([]byte(tt.in), &p))
			assert.Equal(t, tt.want, p.Dialog)

			if !tt.want.IsValid() {
				_, err := json.Marshal(p)
				assert.Error(t, err)
				return
			}
			out, err := json.Marshal(p)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestStarsTransaction_MissingFieldsAreZero(t *testing.T) {
	var tx StarsTransaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","stars":5,"date":10,"peer":{"@type":"starsTransactionPeerFragment"}}`), &tx))

	assert.Equal(t, TransactionPeerFragment, tx.Peer.Type)
	assert.Nil(t, tx.Peer.Peer)
	assert.Zero(t, tx.TransactionDate)
	assert.Empty(t, tx.TransactionURL)
	assert.Nil(t, tx.BotPayload)
	assert.False(t, tx.Pending)
}

func TestChat_DialogID(t *testing.T) {
	assert.Equal(t, dialog.ChannelID(4), Chat{Type: ChatTypeChannel, ID: 4}.DialogID())
	assert.Equal(t, dialog.ChatID(4), Chat{Type: ChatTypeChat, ID: 4}.DialogID())
}
