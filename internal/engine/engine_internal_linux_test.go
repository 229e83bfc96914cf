//go:build linux

package engine

import "testing"

func TestRunDeadPortDeregisteredEpoll(t *testing.T) {
	t.Parallel()
	testDeadPortDeregistered(t, epollInterface{})
}
