package update

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestShouldUpdate checks the decision rule over installed/remote pairs.
func TestShouldUpdate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		installed InstalledState
		remote    int64
		want      bool
	}{
		{"not installed", NotInstalled(), 1, true},
		{"not installed with stale code", InstalledState{IsInstalled: false, VersionCode: 9}, 1, true},
		{"installed unknown version", InstalledState{IsInstalled: true, VersionCode: UnknownVersionCode}, 0, true},
		{"remote newer", InstalledState{IsInstalled: true, VersionCode: 5}, 7, true},
		{"same version", InstalledState{IsInstalled: true, VersionCode: 7}, 7, false},
		{"remote older", InstalledState{IsInstalled: true, VersionCode: 9}, 7, false},
		{"remote zero fallback", InstalledState{IsInstalled: true, VersionCode: 1}, 0, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, ShouldUpdate(tc.installed, tc.remote), tc.name)
	}
}

// TestShouldUpdate_Exhaustive sweeps a grid of pairs and checks the rule holds for all of them.
func TestShouldUpdate_Exhaustive(t *testing.T) {
	t.Parallel()

	for installed := int64(-1); installed <= 12; installed++ {
		for remote := int64(0); remote <= 12; remote++ {
			for _, present := range []bool{true, false} {
				state := InstalledState{IsInstalled: present, VersionCode: installed}
				want := !present || installed == UnknownVersionCode || remote > installed

				require.Equal(t, want, ShouldUpdate(state, remote))
			}
		}
	}
}

// TestWrap keeps both the kind and the cause reachable through errors.Is.
func TestWrap(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrDownloadFailed, io.ErrUnexpectedEOF)
	require.ErrorIs(t, err, ErrDownloadFailed)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.False(t, errors.Is(err, ErrInstallFailed))

	require.Equal(t, ErrNotFound, Wrap(ErrNotFound, nil))
}

// TestReport_FirstFailureWins keeps the earliest failure and the traversal order.
func TestReport_FirstFailureWins(t *testing.T) {
	t.Parallel()

	report := &Report{}
	report.Enter(StateStart)
	report.Enter(StateProbeInstalled)

	require.True(t, report.Succeeded())
	require.True(t, report.Visited(StateProbeInstalled))
	require.False(t, report.Visited(StateInstall))

	report.Fail(ErrNotFound)
	report.Fail(ErrPolicyFailed)
	report.Fail(nil)

	require.False(t, report.Succeeded())
	require.ErrorIs(t, report.Err, ErrNotFound)
	require.Equal(t, []State{StateStart, StateProbeInstalled}, report.States)
	require.Zero(t, report.Duration())
}
