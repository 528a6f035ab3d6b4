package explorer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/explorer/explorertest"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

func TestBroadcast(t *testing.T) {
	t.Parallel()
	srv := explorertest.New(t)

	txid, err := newClient(srv.URL).Broadcast(context.Background(), " 0400008085202f89 ")
	require.NoError(t, err)
	assert.Len(t, txid, 64)
	assert.Equal(t, []string{"0400008085202f89"}, srv.Broadcasts())
}

func TestBroadcast_Rejected(t *testing.T) {
	t.Parallel()
	srv := explorertest.New(t)
	srv.RejectBroadcasts("16: bad-txns-inputs-spent")

	_, err := newClient(srv.URL).Broadcast(context.Background(), "00ff")
	require.ErrorIs(t, err, hwerr.ErrTxRejected)
	assert.Contains(t, err.Error(), "bad-txns-inputs-spent")
	assert.Empty(t, srv.Broadcasts())
}

func TestBroadcast_InvalidInput(t *testing.T) {
	t.Parallel()
	c := newClient("http://127.0.0.1:1")

	_, err := c.Broadcast(context.Background(), "")
	require.ErrorIs(t, err, hwerr.ErrInvalidInput)

	_, err = c.Broadcast(context.Background(), "zz-not-hex")
	require.ErrorIs(t, err, hwerr.ErrInvalidInput)
}
