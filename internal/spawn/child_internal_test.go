package spawn

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/swarm/internal/cred"
	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/runtime"
)

// childFixture stands in for the descriptors and privileged syscalls a real
// re-exec'd child would have, recording the order sensitive steps run in.
type childFixture struct {
	steps       []string
	released    []int
	controlRead *os.File
}

func newChildFixture(t *testing.T) *childFixture {
	t.Helper()
	fx := &childFixture{}

	pfds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	cfds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	prf := os.NewFile(uintptr(pfds[0]), "primary-r")
	pwf := os.NewFile(uintptr(pfds[1]), "primary-w")
	fx.controlRead = os.NewFile(uintptr(cfds[0]), "control-r")
	cwf := os.NewFile(uintptr(cfds[1]), "control-w")
	t.Cleanup(func() { fx.controlRead.Close() })

	swap(t, &geteuid, func() int { return 0 })
	swap(t, &newSwitcher, func() *cred.Switcher {
		return &cred.Switcher{
			Setgid:     func(int) error { fx.steps = append(fx.steps, "setgid"); return nil },
			Setgroups:  func([]int) error { fx.steps = append(fx.steps, "setgroups"); return nil },
			Initgroups: func(string, uint32) error { fx.steps = append(fx.steps, "initgroups"); return nil },
			Setuid:     func(int) error { fx.steps = append(fx.steps, "setuid"); return nil },
		}
	})
	swap(t, &releaseShared, func(rec *process.Record) {
		fx.released = append(fx.released, rec.PID)
	})
	swap(t, &inheritedFiles, func() (a, b, c, d *os.File) {
		return prf, pwf, nil, cwf
	})
	return fx
}

func swap[T any](t *testing.T, target *T, v T) {
	t.Helper()
	orig := *target
	*target = v
	t.Cleanup(func() { *target = orig })
}

func testRuntime() *runtime.Runtime {
	rt := runtime.New()
	rt.EngineName = "poll"
	rt.AuxThreads = 2
	return rt
}

func TestChildStartSequence(t *testing.T) {
	fx := newChildFixture(t)
	rt := testRuntime()

	init := &process.Init{
		Name:   "router",
		Type:   process.Router,
		Stream: 42,
		Cred:   &cred.UserCred{User: "web", UID: 1001, BaseGID: 33, GIDs: []uint32{33, 100}},
		Start: func(any) error {
			fx.steps = append(fx.steps, "start")
			return nil
		},
	}
	env := childEnv{
		Role: "router", Stream: 42, PortID: 7, Engine: "poll", AuxThreads: 2,
		Procs: []procSnapshot{
			{PID: 100, Ready: true},
			{PID: 101, Ready: false},
		},
	}

	require.NoError(t, childStart(rt, init, env))
	t.Cleanup(func() {
		rt.Engine.Close()
		rt.Pool.Close()
	})

	// Identity drops fully before role code runs, uid last.
	assert.Equal(t, []string{"setgid", "setgroups", "setuid", "start"}, fx.steps)

	// In-flight sibling purged, ready sibling kept and released.
	assert.Nil(t, rt.Registry.Get(101))
	ready := rt.Registry.Get(100)
	require.NotNil(t, ready)
	assert.True(t, ready.Ready.Load())
	assert.Equal(t, []int{100}, fx.released)

	require.NotNil(t, rt.Self)
	assert.True(t, rt.Self.Ready.Load())
	assert.True(t, rt.HasType(process.Router))
	assert.Equal(t, "poll", rt.Engine.Name())
	require.NotNil(t, rt.Pool)

	f, err := port.ReadFrame(fx.controlRead)
	require.NoError(t, err)
	assert.Equal(t, port.MsgReady, f.MsgType)
	assert.Equal(t, uint32(42), f.Stream)
}

func TestChildStartSkipsSwitchUnprivileged(t *testing.T) {
	fx := newChildFixture(t)
	swap(t, &geteuid, func() int { return 1000 })
	rt := testRuntime()

	init := &process.Init{
		Name: "worker",
		Type: process.Worker,
		Cred: &cred.UserCred{User: "web", UID: 1001, BaseGID: 33},
	}
	require.NoError(t, childStart(rt, init, childEnv{Role: "worker", Engine: "poll", AuxThreads: 2}))
	t.Cleanup(func() {
		rt.Engine.Close()
		rt.Pool.Close()
	})

	assert.Empty(t, fx.steps)
}

func TestChildStartRoleFailure(t *testing.T) {
	fx := newChildFixture(t)
	rt := testRuntime()

	boom := errors.New("no listen socket")
	init := &process.Init{
		Name:  "worker",
		Type:  process.Worker,
		Start: func(any) error { return boom },
	}

	err := childStart(rt, init, childEnv{Role: "worker", Engine: "poll", AuxThreads: 2})
	require.ErrorIs(t, err, boom)
	t.Cleanup(func() {
		rt.Engine.Close()
		rt.Pool.Close()
	})

	// No READY goes out and the child never marks itself ready.
	require.NotNil(t, rt.Self)
	assert.False(t, rt.Self.Ready.Load())
	assert.Empty(t, fx.released)
}

func TestChildStartUnknownEngine(t *testing.T) {
	newChildFixture(t)
	rt := testRuntime()
	rt.EngineName = "kqueue"

	err := childStart(rt, &process.Init{Name: "worker"}, childEnv{Role: "worker", Engine: "kqueue", AuxThreads: 2})
	require.Error(t, err)
	t.Cleanup(func() { rt.Engine.Close() })
}

func TestRunChildMalformedHandoff(t *testing.T) {
	t.Setenv(ChildRoleEnv, "")

	var code = -1
	swap(t, &osExit, func(c int) {
		code = c
		panic("exit")
	})
	assert.PanicsWithValue(t, "exit", func() { RunChild(t.Context()) })
	assert.Equal(t, 1, code)
}
