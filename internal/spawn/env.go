package spawn

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bamsammich/swarm/internal/cred"
	"github.com/bamsammich/swarm/internal/process"
)

// Environment variables carrying the parent-to-child handoff across the
// re-exec boundary. File descriptors travel as ExtraFiles instead and land
// at fixed child-side numbers.
const (
	ChildRoleEnv    = "SWARM_CHILD_ROLE"
	ChildStreamEnv  = "SWARM_CHILD_STREAM"
	ChildPortIDEnv  = "SWARM_CHILD_PORT_ID"
	ChildEngineEnv  = "SWARM_CHILD_ENGINE"
	ChildThreadsEnv = "SWARM_CHILD_THREADS"
	ChildProcsEnv   = "SWARM_CHILD_PROCS"
	ChildCredEnv    = "SWARM_CHILD_CRED"
)

// Child-side descriptor numbers for the inherited port halves. ExtraFiles
// start at fd 3 in the child.
const (
	childPrimaryReadFD  = 3
	childPrimaryWriteFD = 4
	childControlReadFD  = 5
	childControlWriteFD = 6
)

// procSnapshot is one sibling record as seen by the parent at spawn time.
// The child seeds its registry from these and prunes the not-ready ones.
type procSnapshot struct {
	PID   int
	Ready bool
}

type childEnv struct {
	Role       string
	Stream     uint32
	PortID     uint32
	Engine     string
	AuxThreads int
	Procs      []procSnapshot
	Cred       *cred.UserCred
}

// InChildMode reports whether this invocation is a re-exec'd child. Checked
// before any CLI parsing so worker dispatch never races flag handling.
func InChildMode() bool {
	return os.Getenv(ChildRoleEnv) != ""
}

func (e childEnv) encode() []string {
	env := []string{
		ChildRoleEnv + "=" + e.Role,
		ChildStreamEnv + "=" + strconv.FormatUint(uint64(e.Stream), 10),
		ChildPortIDEnv + "=" + strconv.FormatUint(uint64(e.PortID), 10),
		ChildEngineEnv + "=" + e.Engine,
		ChildThreadsEnv + "=" + strconv.Itoa(e.AuxThreads),
		ChildProcsEnv + "=" + encodeProcs(e.Procs),
	}
	if e.Cred != nil {
		env = append(env, ChildCredEnv+"="+encodeCred(e.Cred))
	}
	return env
}

func decodeChildEnv() (childEnv, error) {
	var e childEnv

	e.Role = os.Getenv(ChildRoleEnv)
	if e.Role == "" {
		return e, fmt.Errorf("%s not set", ChildRoleEnv)
	}

	stream, err := strconv.ParseUint(os.Getenv(ChildStreamEnv), 10, 32)
	if err != nil {
		return e, fmt.Errorf("parse %s: %w", ChildStreamEnv, err)
	}
	e.Stream = uint32(stream)

	portID, err := strconv.ParseUint(os.Getenv(ChildPortIDEnv), 10, 32)
	if err != nil {
		return e, fmt.Errorf("parse %s: %w", ChildPortIDEnv, err)
	}
	e.PortID = uint32(portID)

	e.Engine = os.Getenv(ChildEngineEnv)
	if e.Engine == "" {
		return e, fmt.Errorf("%s not set", ChildEngineEnv)
	}

	e.AuxThreads, err = strconv.Atoi(os.Getenv(ChildThreadsEnv))
	if err != nil {
		return e, fmt.Errorf("parse %s: %w", ChildThreadsEnv, err)
	}

	e.Procs, err = decodeProcs(os.Getenv(ChildProcsEnv))
	if err != nil {
		return e, fmt.Errorf("parse %s: %w", ChildProcsEnv, err)
	}

	if raw := os.Getenv(ChildCredEnv); raw != "" {
		e.Cred, err = decodeCred(raw)
		if err != nil {
			return e, fmt.Errorf("parse %s: %w", ChildCredEnv, err)
		}
	}
	return e, nil
}

// encodeProcs renders records as "pid:ready" pairs, e.g. "312:1,340:0".
func encodeProcs(procs []procSnapshot) string {
	parts := make([]string, 0, len(procs))
	for _, p := range procs {
		ready := "0"
		if p.Ready {
			ready = "1"
		}
		parts = append(parts, strconv.Itoa(p.PID)+":"+ready)
	}
	return strings.Join(parts, ",")
}

func decodeProcs(raw string) ([]procSnapshot, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	procs := make([]procSnapshot, 0, len(parts))
	for _, part := range parts {
		pid, ready, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed record %q", part)
		}
		n, err := strconv.Atoi(pid)
		if err != nil {
			return nil, fmt.Errorf("malformed pid %q: %w", pid, err)
		}
		procs = append(procs, procSnapshot{PID: n, Ready: ready == "1"})
	}
	return procs, nil
}

// encodeCred renders resolved credentials as "user:uid:gid:g1;g2". A "-"
// group list means the supplementary groups could not be captured and the
// child must fall back to initgroups at switch time.
func encodeCred(c *cred.UserCred) string {
	groups := "-"
	if c.GIDs != nil {
		parts := make([]string, len(c.GIDs))
		for i, g := range c.GIDs {
			parts[i] = strconv.FormatUint(uint64(g), 10)
		}
		groups = strings.Join(parts, ";")
	}
	return strings.Join([]string{
		c.User,
		strconv.FormatUint(uint64(c.UID), 10),
		strconv.FormatUint(uint64(c.BaseGID), 10),
		groups,
	}, ":")
}

func decodeCred(raw string) (*cred.UserCred, error) {
	fields := strings.Split(raw, ":")
	if len(fields) != 4 {
		return nil, fmt.Errorf("malformed credentials %q", raw)
	}

	uid, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed uid %q: %w", fields[1], err)
	}
	gid, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed gid %q: %w", fields[2], err)
	}

	c := &cred.UserCred{User: fields[0], UID: uint32(uid), BaseGID: uint32(gid)}
	if fields[3] != "-" {
		c.GIDs = []uint32{}
		if fields[3] != "" {
			for _, part := range strings.Split(fields[3], ";") {
				g, err := strconv.ParseUint(part, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("malformed group %q: %w", part, err)
				}
				c.GIDs = append(c.GIDs, uint32(g))
			}
		}
	}
	return c, nil
}

// snapshotRegistry captures the parent's registry for the child handoff.
func snapshotRegistry(reg *process.Registry) []procSnapshot {
	var procs []procSnapshot
	reg.Each(func(rec *process.Record) {
		procs = append(procs, procSnapshot{PID: rec.PID, Ready: rec.Ready.Load()})
	})
	return procs
}
