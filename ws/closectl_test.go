package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloseControllerTransitions(t *testing.T) {
	cc := newCloseController()
	require.Equal(t, StateClosed, cc.State())

	require.True(t, cc.transition(StateClosed, StateOpen))
	require.Equal(t, StateOpen, cc.State())

	// A transition from the wrong state is a no-op, not an error.
	require.False(t, cc.transition(StateClosed, StateClosing))
	require.Equal(t, StateOpen, cc.State())

	require.True(t, cc.transition(StateOpen, StateClosing))
	require.True(t, cc.transition(StateClosing, StateClosed))
	require.Equal(t, StateClosed, cc.State())
}

// TestMarkClosedOnce covers spec property 4: on_close fires exactly once.
func TestMarkClosedOnce(t *testing.T) {
	cc := newCloseController()
	require.True(t, cc.markClosedOnce())
	require.False(t, cc.markClosedOnce())
	require.False(t, cc.markClosedOnce())
}

func TestForceClosedFromAnyState(t *testing.T) {
	cc := newCloseController()
	cc.transition(StateClosed, StateOpen)
	prev := cc.forceClosed()
	require.Equal(t, StateOpen, prev)
	require.Equal(t, StateClosed, cc.State())
}

func TestCloseFramePayloadRoundTrip(t *testing.T) {
	info := CloseInfo{Code: CloseGoingAway, Reason: "server shutdown"}
	got := decodeCloseFrame(encodeCloseFrame(info))
	require.Equal(t, info, got)
}

func TestDecodeCloseFrameEmptyPayloadSynthesizesNormal(t *testing.T) {
	got := decodeCloseFrame(nil)
	require.Equal(t, CloseInfo{Code: CloseNormal}, got)
}

func TestDecodeCloseFrameTruncatedPayload(t *testing.T) {
	got := decodeCloseFrame([]byte{0x03})
	require.Equal(t, CloseInvalidPayloadData, got.Code)
}

func TestDecodeCloseFrameInvalidUTF8(t *testing.T) {
	payload := append(encodeCloseFrame(CloseInfo{Code: CloseNormal})[:2], 0xff, 0xfe)
	got := decodeCloseFrame(payload)
	require.Equal(t, CloseInvalidPayloadData, got.Code)
}

// TestArmIdleTimerIsArmOnce checks that a second armIdleTimer call before
// the first has fired is a no-op (the timer field is only ever set once
// per close sequence), and that cancelIdleTimer stops it before it fires.
func TestArmIdleTimerIsArmOnce(t *testing.T) {
	cc := newCloseController()
	calls := 0
	cc.armIdleTimer(func() { calls++ })
	first := cc.timer
	cc.armIdleTimer(func() { calls++ })
	require.Same(t, first, cc.timer)

	cc.cancelIdleTimer()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, calls)
}
