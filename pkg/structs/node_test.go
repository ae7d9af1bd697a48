package structs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionNode(t *testing.T) {
	cases := []struct {
		Name   string
		From   NodeState
		To     NodeState
		Expect bool
	}{
		{Name: "PendingToStarting", From: NodePending, To: NodeStarting, Expect: true},
		{Name: "StartingToRunning", From: NodeStarting, To: NodeRunning, Expect: true},
		{Name: "RunningToOutdated", From: NodeRunning, To: NodeOutdated, Expect: true},
		{Name: "RunningToIdle", From: NodeRunning, To: NodeIdle, Expect: true},
		{Name: "OutdatedToFinishing", From: NodeOutdated, To: NodeFinishing, Expect: true},
		{Name: "FinishingToIdle", From: NodeFinishing, To: NodeIdle, Expect: true},
		{Name: "IdleToTerminated", From: NodeIdle, To: NodeTerminated, Expect: true},
		{Name: "PendingToRunning", From: NodePending, To: NodeRunning, Expect: false},
		{Name: "RunningToTerminated", From: NodeRunning, To: NodeTerminated, Expect: false},
		{Name: "TerminatedIsFinal", From: NodeTerminated, To: NodePending, Expect: false},
		{Name: "ErrorIsFinal", From: NodeError, To: NodePending, Expect: false},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, CanTransitionNode(c.From, c.To))
		})
	}
}

func TestAnyStateCanError(t *testing.T) {
	for from := range nodeTransitions {
		assert.True(t, CanTransitionNode(from, NodeError), string(from))
	}
}

func TestToNodeState(t *testing.T) {
	assert.Equal(t, NodePending, ToNodeState("pending"))
	assert.Equal(t, NodeFinishing, ToNodeState("FINISHING"))
	assert.Equal(t, NodeState(""), ToNodeState("nope"))
}
