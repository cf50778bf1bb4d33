package purchasing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextStatusHappyPath(t *testing.T) {
	cases := []struct {
		from  POStatus
		event Event
		to    POStatus
	}{
		{StatusDraft, EventSubmit, StatusPending},
		{StatusPending, EventApprove, StatusApproved},
		{StatusPending, EventReject, StatusRejected},
		{StatusApproved, EventSend, StatusSent},
		{StatusSent, EventAcknowledge, StatusAcknowledged},
	}
	for _, tc := range cases {
		next, err := NextStatus(tc.from, tc.event)
		require.NoError(t, err, "%s from %s", tc.event, tc.from)
		require.Equal(t, tc.to, next)
	}
}

func TestCancelFromEveryStatus(t *testing.T) {
	cancellable := []POStatus{StatusDraft, StatusPending, StatusApproved, StatusSent, StatusAcknowledged}
	for _, from := range cancellable {
		next, err := NextStatus(from, EventCancel)
		require.NoError(t, err, "cancel from %s", from)
		require.Equal(t, StatusCancelled, next)
	}

	terminal := []POStatus{StatusDelivered, StatusRejected, StatusCancelled}
	for _, from := range terminal {
		_, err := NextStatus(from, EventCancel)
		require.ErrorIs(t, err, ErrInvalidTransition, "cancel from %s", from)
	}
}

func TestNextStatusRejectsIllegalEvents(t *testing.T) {
	all := []POStatus{StatusDraft, StatusPending, StatusApproved, StatusSent, StatusAcknowledged, StatusDelivered, StatusRejected, StatusCancelled}
	events := []Event{EventSubmit, EventApprove, EventReject, EventSend, EventAcknowledge}

	legal := map[Event]POStatus{
		EventSubmit:      StatusDraft,
		EventApprove:     StatusPending,
		EventReject:      StatusPending,
		EventSend:        StatusApproved,
		EventAcknowledge: StatusSent,
	}
	for _, event := range events {
		for _, from := range all {
			_, err := NextStatus(from, event)
			if from == legal[event] {
				require.NoError(t, err, "%s from %s", event, from)
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", event, from)
		}
	}
}

func TestTerminalStatusesAdmitNothing(t *testing.T) {
	events := []Event{EventSubmit, EventApprove, EventReject, EventSend, EventAcknowledge, EventCancel}
	for _, from := range []POStatus{StatusDelivered, StatusRejected, StatusCancelled} {
		require.True(t, from.Terminal())
		for _, event := range events {
			_, err := NextStatus(from, event)
			require.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", event, from)
		}
	}
}

func TestItemComplete(t *testing.T) {
	require.True(t, POItem{Quantity: 0}.Complete())
	require.True(t, POItem{Quantity: 500, DeliveredQuantity: 500}.Complete())
	require.False(t, POItem{Quantity: 500, DeliveredQuantity: 300}.Complete())
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusDraft.Valid())
	require.True(t, StatusCancelled.Valid())
	require.False(t, POStatus("shipped").Valid())
}
