package cred_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/cred"
)

// switchRecorder logs the order of identity-switch steps.
type switchRecorder struct {
	steps []string

	gidErr    error
	groupsErr error
	initErr   error
	uidErr    error
}

func (sr *switchRecorder) switcher() *cred.Switcher {
	return &cred.Switcher{
		Setgid: func(gid int) error {
			sr.steps = append(sr.steps, "setgid")
			return sr.gidErr
		},
		Setgroups: func(gids []int) error {
			sr.steps = append(sr.steps, "setgroups")
			return sr.groupsErr
		},
		Initgroups: func(username string, baseGID uint32) error {
			sr.steps = append(sr.steps, "initgroups")
			return sr.initErr
		},
		Setuid: func(uid int) error {
			sr.steps = append(sr.steps, "setuid")
			return sr.uidErr
		},
	}
}

func TestApplyOrder(t *testing.T) {
	t.Parallel()

	sr := &switchRecorder{}
	uc := &cred.UserCred{User: "web", UID: 1001, BaseGID: 33, GIDs: []uint32{33, 100}}

	require.NoError(t, sr.switcher().Apply(uc))
	assert.Equal(t, []string{"setgid", "setgroups", "setuid"}, sr.steps)
}

func TestApplyInitgroupsFallback(t *testing.T) {
	t.Parallel()

	sr := &switchRecorder{}
	uc := &cred.UserCred{User: "web", UID: 1001, BaseGID: 33} // GIDs unresolved

	require.NoError(t, sr.switcher().Apply(uc))
	assert.Equal(t, []string{"setgid", "initgroups", "setuid"}, sr.steps)
}

func TestApplyGidFailureAbortsEverything(t *testing.T) {
	t.Parallel()

	sr := &switchRecorder{gidErr: errors.New("EPERM")}
	uc := &cred.UserCred{User: "web", UID: 1001, BaseGID: 33, GIDs: []uint32{33}}

	err := sr.switcher().Apply(uc)
	require.ErrorIs(t, err, cred.ErrPrivilegeDrop)
	assert.Equal(t, []string{"setgid"}, sr.steps)
}

func TestApplyGroupsFailureLeavesUIDUntouched(t *testing.T) {
	t.Parallel()

	sr := &switchRecorder{groupsErr: errors.New("EPERM")}
	uc := &cred.UserCred{User: "web", UID: 1001, BaseGID: 33, GIDs: []uint32{33}}

	err := sr.switcher().Apply(uc)
	require.ErrorIs(t, err, cred.ErrPrivilegeDrop)
	assert.NotContains(t, sr.steps, "setuid")
}

func TestApplyUIDFailure(t *testing.T) {
	t.Parallel()

	sr := &switchRecorder{uidErr: errors.New("EPERM")}
	uc := &cred.UserCred{User: "web", UID: 1001, BaseGID: 33, GIDs: []uint32{33}}

	err := sr.switcher().Apply(uc)
	require.ErrorIs(t, err, cred.ErrPrivilegeDrop)
	assert.Equal(t, []string{"setgid", "setgroups", "setuid"}, sr.steps)
}
