package cred

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrPrivilegeDrop indicates a step of the identity switch failed. Callers
// must treat it as fatal: a partially dropped identity is not a state under
// which role code may run.
var ErrPrivilegeDrop = errors.New("privilege drop failed")

// Switcher applies a resolved identity to the current process. The switch is
// one-way and must happen while the process still runs privileged, before
// any role code executes.
//
// Order is fixed: base gid first, then supplementary groups, then uid last —
// the right to change group membership is lost the moment uid is dropped.
// Go propagates the set*id syscalls to all runtime threads.
type Switcher struct {
	Setgid     func(gid int) error
	Setgroups  func(gids []int) error
	Initgroups func(username string, baseGID uint32) error
	Setuid     func(uid int) error
}

// NewSwitcher creates a Switcher backed by the real syscalls.
func NewSwitcher() *Switcher {
	return &Switcher{
		Setgid:     unix.Setgid,
		Setgroups:  unix.Setgroups,
		Initgroups: initgroups,
		Setuid:     unix.Setuid,
	}
}

// Apply switches the current process to uc. The first failing step aborts
// the sequence; nothing after it runs.
func (s *Switcher) Apply(uc *UserCred) error {
	if err := s.Setgid(int(uc.BaseGID)); err != nil {
		return fmt.Errorf("%w: setgid(%d): %v", ErrPrivilegeDrop, uc.BaseGID, err)
	}

	if uc.GIDs != nil {
		gids := make([]int, len(uc.GIDs))
		for i, g := range uc.GIDs {
			gids[i] = int(g)
		}
		if err := s.Setgroups(gids); err != nil {
			return fmt.Errorf("%w: setgroups(%d groups): %v", ErrPrivilegeDrop, len(gids), err)
		}
	} else {
		// Supplementary list was not pre-resolved (platform cap); have the
		// OS compute and install it directly.
		if err := s.Initgroups(uc.User, uc.BaseGID); err != nil {
			return fmt.Errorf("%w: initgroups(%q, %d): %v", ErrPrivilegeDrop, uc.User, uc.BaseGID, err)
		}
	}

	if err := s.Setuid(int(uc.UID)); err != nil {
		return fmt.Errorf("%w: setuid(%d): %v", ErrPrivilegeDrop, uc.UID, err)
	}

	return nil
}
