package viewer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitions(t *testing.T) {
	m := NewMachine()
	require.Equal(t, Idle, m.State())

	require.NoError(t, m.Apply(EventControlOpen))
	require.Equal(t, Connecting, m.State())

	require.NoError(t, m.Apply(EventJoinAcked))
	require.Equal(t, WaitingForPeer, m.State())

	require.NoError(t, m.Apply(EventPeerJoined))
	require.Equal(t, Offering, m.State())

	require.NoError(t, m.Apply(EventOfferSent))
	require.Equal(t, Negotiating, m.State())

	require.NoError(t, m.Apply(EventTransportEstablished))
	require.Equal(t, Connected, m.State())

	require.NoError(t, m.Apply(EventDetectToggleOn))
	require.Equal(t, Detecting, m.State())

	require.NoError(t, m.Apply(EventDetectToggleOff))
	require.Equal(t, Connected, m.State())
}

func TestPeerLeftReturnsToWaitingForPeer(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Apply(EventControlOpen))
	require.NoError(t, m.Apply(EventJoinAcked))
	require.NoError(t, m.Apply(EventPeerJoined))
	require.NoError(t, m.Apply(EventOfferSent))
	require.NoError(t, m.Apply(EventTransportEstablished))
	require.NoError(t, m.Apply(EventDetectToggleOn))

	require.NoError(t, m.Apply(EventPeerLeft))
	require.Equal(t, WaitingForPeer, m.State())
}

func TestShutdownIsTerminalFromAnyState(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Apply(EventShutdown))
	require.Equal(t, Closed, m.State())
	// idempotent
	require.NoError(t, m.Apply(EventShutdown))
	require.Equal(t, Closed, m.State())
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	m := NewMachine()
	err := m.Apply(EventDetectToggleOn)
	require.Error(t, err)
	require.Equal(t, Idle, m.State())
}
