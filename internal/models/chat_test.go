package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("u1", "u2"), PairKey("u2", "u1"))
	assert.NotEqual(t, PairKey("u1", "u2"), PairKey("u1", "u3"))
}

func TestRoomPeer(t *testing.T) {
	r := &Room{SenderID: "u1", ReceiverID: "u2"}
	assert.Equal(t, "u2", r.Peer("u1"))
	assert.Equal(t, "u1", r.Peer("u2"))
}

func TestBeforeCreateAssignsIDs(t *testing.T) {
	r := &Room{SenderID: "b", ReceiverID: "a"}
	assert.NoError(t, r.BeforeCreate(nil))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "a:b", r.PairKey)

	m := &Message{}
	assert.NoError(t, m.BeforeCreate(nil))
	assert.NotEmpty(t, m.ID)
	assert.NotNil(t, m.Images)

	u := &User{ID: "fixed"}
	assert.NoError(t, u.BeforeCreate(nil))
	assert.Equal(t, "fixed", u.ID)
}
