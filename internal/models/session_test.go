package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTransitions(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionStatusScheduled, SessionStatusOngoing, true},
		{SessionStatusScheduled, SessionStatusCancelled, true},
		{SessionStatusScheduled, SessionStatusCompleted, false},
		{SessionStatusOngoing, SessionStatusCompleted, true},
		{SessionStatusOngoing, SessionStatusCancelled, true},
		{SessionStatusOngoing, SessionStatusScheduled, false},
		{SessionStatusCompleted, SessionStatusOngoing, false},
		{SessionStatusCompleted, SessionStatusCancelled, false},
		{SessionStatusCancelled, SessionStatusScheduled, false},
		{SessionStatusCancelled, SessionStatusOngoing, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}
