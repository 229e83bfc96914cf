package spawn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonizeParentReexecs(t *testing.T) {
	t.Setenv(daemonEnv, "")
	swap(t, &executable, func() (string, error) { return "/bin/true", nil })

	code := -1
	swap(t, &osExit, func(c int) {
		code = c
		panic("exit")
	})

	// The parent branch hands off to the re-exec'd copy and exits 0; it
	// must never fall through to the detach steps.
	assert.PanicsWithValue(t, "exit", func() { _ = Daemonize() })
	assert.Equal(t, 0, code)
}

func TestDaemonizeExecutableUnresolvable(t *testing.T) {
	t.Setenv(daemonEnv, "")
	swap(t, &executable, func() (string, error) { return "", errors.New("no proc self") })

	err := Daemonize()
	require.ErrorIs(t, err, ErrDaemonize)
}
