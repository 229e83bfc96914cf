// Package cred resolves user/group names into concrete OS identities and
// applies them to the current process.
//
// Resolution is expected to run in the privileged main process, before any
// worker is spawned: the account database may live behind LDAP or NIS and a
// lookup can block for a long time, which a freshly spawned worker cannot
// afford during its startup sequence.
package cred

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// Sentinel errors for credential resolution.
var (
	// ErrLookupFailed indicates the account database query itself errored.
	ErrLookupFailed = errors.New("identity lookup failed")
	// ErrUserNotFound indicates the named user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrGroupNotFound indicates the named group does not exist.
	ErrGroupNotFound = errors.New("group not found")
)

// UserCred is a resolved OS identity. Populated once by Resolver.Resolve and
// immutable afterwards; it is owned by the process descriptor it belongs to.
//
// A nil GIDs slice means the supplementary list could not be pre-resolved
// (platform cap, see resolveGroups) and the Switcher falls back to the OS
// initgroups call at switch time.
type UserCred struct {
	User    string
	UID     uint32
	BaseGID uint32
	GIDs    []uint32
}

// Resolver looks up user and group names in the system account database.
// The function fields are seams for tests; NewResolver fills in the real
// syscalls.
type Resolver struct {
	LookupUser  func(name string) (*user.User, error)
	LookupGroup func(name string) (*user.Group, error)
	Getgroups   func() ([]int, error)
	Setgroups   func(gids []int) error
	Initgroups  func(username string, baseGID uint32) error
	Euid        func() int
}

// NewResolver creates a Resolver backed by the real OS account database.
func NewResolver() *Resolver {
	return &Resolver{
		LookupUser:  user.Lookup,
		LookupGroup: user.LookupGroup,
		Getgroups:   unix.Getgroups,
		Setgroups:   unix.Setgroups,
		Initgroups:  initgroups,
		Euid:        os.Geteuid,
	}
}

// Resolve looks up username (and, when non-empty, group) and returns the
// resolved identity. The base gid defaults to the user's primary group; an
// explicit group overrides it. When running privileged, the supplementary
// group list is pre-resolved as well so that the eventual privilege switch
// in a worker never has to touch the account database.
func (r *Resolver) Resolve(username, group string) (*UserCred, error) {
	u, err := r.LookupUser(username)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("%w: user %q: %v", ErrLookupFailed, username, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: user %q has non-numeric uid %q", ErrLookupFailed, username, u.Uid)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: user %q has non-numeric gid %q", ErrLookupFailed, username, u.Gid)
	}

	uc := &UserCred{
		User:    username,
		UID:     uint32(uid),
		BaseGID: uint32(gid),
	}

	if group != "" {
		g, err := r.LookupGroup(group)
		if err != nil {
			var unknown user.UnknownGroupError
			if errors.As(err, &unknown) {
				return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, group)
			}
			return nil, fmt.Errorf("%w: group %q: %v", ErrLookupFailed, group, err)
		}
		ggid, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q has non-numeric gid %q", ErrLookupFailed, group, g.Gid)
		}
		uc.BaseGID = uint32(ggid)
	}

	if r.Euid() == 0 {
		if err := r.resolveGroups(uc); err != nil {
			return nil, err
		}
	}

	return uc, nil
}

// resolveGroups stores the supplementary group id list which the Switcher
// will later install with setgroups. The OS initgroups primitive computes
// that list, but only as a side effect: it replaces the *current* process's
// group list. So this emulates a query: snapshot our own groups, call
// initgroups for the target user, read the result back, and restore the
// snapshot — on the failure paths too, so the privileged caller's own
// membership is never left corrupted.
//
// Some platforms (macOS) cap the group count getgroups can report below
// what a process may actually hold; when the snapshot exceeds the cap the
// emulation cannot round-trip and the list is left unresolved, which the
// Switcher handles by calling initgroups directly at switch time.
func (r *Resolver) resolveGroups(uc *UserCred) error {
	saved, err := r.Getgroups()
	if err != nil {
		return fmt.Errorf("%w: getgroups: %v", ErrLookupFailed, err)
	}

	if len(saved) > nGroupsMax {
		return nil
	}

	if err := r.Initgroups(uc.User, uc.BaseGID); err != nil {
		return errors.Join(
			fmt.Errorf("%w: initgroups(%q, %d): %v", ErrLookupFailed, uc.User, uc.BaseGID, err),
			r.restoreGroups(saved),
		)
	}

	cur, err := r.Getgroups()
	if err != nil {
		return errors.Join(
			fmt.Errorf("%w: getgroups: %v", ErrLookupFailed, err),
			r.restoreGroups(saved),
		)
	}

	gids := make([]uint32, len(cur))
	for i, g := range cur {
		gids[i] = uint32(g) //nolint:gosec // G115: gids are non-negative and bounded
	}
	uc.GIDs = gids

	return r.restoreGroups(saved)
}

func (r *Resolver) restoreGroups(saved []int) error {
	if err := r.Setgroups(saved); err != nil {
		return fmt.Errorf("%w: setgroups restore: %v", ErrLookupFailed, err)
	}
	return nil
}

// initgroups is the Go stand-in for the libc call of the same name: compute
// the user's group list and install it as the current process's
// supplementary groups. May block on the account database.
func initgroups(username string, baseGID uint32) error {
	u, err := user.Lookup(username)
	if err != nil {
		return err
	}

	ids, err := u.GroupIds()
	if err != nil {
		return err
	}

	gids := make([]int, 0, len(ids)+1)
	gids = append(gids, int(baseGID))
	for _, s := range ids {
		g, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		if g != int(baseGID) {
			gids = append(gids, g)
		}
	}

	return unix.Setgroups(gids)
}
