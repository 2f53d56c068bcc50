package reqrep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
)

func TestCloneDoesNotEnlargeCapacity(t *testing.T) {
	const bufSize = 2
	client, backend := NewChannel[int, int](NewID(), bufSize)
	defer backend.Close()

	clients := []*Client[int, int]{client}
	for range 4 {
		clients = append(clients, client.Clone())
	}

	var accepted, full int
	for i, c := range clients {
		assert.Equal(t, bufSize, c.Cap())
		_, err := c.TrySend(i)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, errspkg.ErrChannelFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, bufSize, accepted)
	assert.Equal(t, len(clients)-bufSize, full)
	assert.Equal(t, bufSize, client.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := clients[3].Send(ctx, 99)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Freeing one slot lets exactly one blocked send through.
	msg, ok := backend.Recv(context.Background())
	require.True(t, ok)
	req, _ := msg.TakeRequest()
	assert.Equal(t, 0, req)
	_, err = clients[4].TrySend(100)
	assert.NoError(t, err)
}

func TestChannelSendErrorsMatchParent(t *testing.T) {
	client, backend := NewChannel[int, int](NewID(), 1)
	_, err := client.TrySend(1)
	require.NoError(t, err)

	_, err = client.TrySend(2)
	assert.ErrorIs(t, err, errspkg.ErrChannelSend)
	assert.ErrorIs(t, err, errspkg.ErrChannelFull)

	backend.Close()
	_, err = client.TrySend(3)
	assert.ErrorIs(t, err, errspkg.ErrChannelSend)
	assert.ErrorIs(t, err, errspkg.ErrChannelDisconnected)
}

func TestBackendDrainsAfterClientsClose(t *testing.T) {
	client, backend := NewChannel[string, string](NewID(), 4)
	clone := client.Clone()

	rx1, err := client.Send(context.Background(), "a")
	require.NoError(t, err)
	rx2, err := clone.Send(context.Background(), "b")
	require.NoError(t, err)

	client.Close()
	client.Close()
	clone.Close()

	var got []string
	for {
		msg, ok := backend.Recv(context.Background())
		if !ok {
			break
		}
		req, _ := msg.TakeRequest()
		got = append(got, req)
		require.NoError(t, msg.Reply(req+"!"))
	}
	assert.Equal(t, []string{"a", "b"}, got)

	rep, err := rx1.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a!", rep)
	rep, err = rx2.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b!", rep)
}

func TestBackendCloseDisconnectsBufferedRequests(t *testing.T) {
	client, backend := NewChannel[int, int](NewID(), 2)
	defer client.Close()

	rx, err := client.Send(context.Background(), 1)
	require.NoError(t, err)

	backend.Close()
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrDisconnected)

	_, err = client.Send(context.Background(), 2)
	assert.ErrorIs(t, err, errspkg.ErrChannelDisconnected)

	_, ok := backend.Recv(context.Background())
	assert.False(t, ok)
}

func TestClosedHandleRejectsSend(t *testing.T) {
	client, backend := NewChannel[int, int](NewID(), 1)
	defer backend.Close()
	clone := client.Clone()
	defer clone.Close()

	client.Close()
	_, err := client.Send(context.Background(), 1)
	assert.ErrorIs(t, err, errspkg.ErrChannelDisconnected)

	closedClone := client.Clone()
	_, err = closedClone.TrySend(1)
	assert.ErrorIs(t, err, errspkg.ErrChannelDisconnected)

	_, err = clone.TrySend(1)
	assert.NoError(t, err)
}

func TestBackendDisconnect(t *testing.T) {
	client, backend := NewChannel[int, int](NewID(), 1)
	defer backend.Close()
	defer client.Close()

	rx, err := client.Send(context.Background(), 1)
	require.NoError(t, err)
	msg, ok := backend.Recv(context.Background())
	require.True(t, ok)
	backend.Disconnect(msg)

	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrDisconnected)
}
