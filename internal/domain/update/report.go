package update

import "time"

// State is a step of the update state machine.
type State string

// Update states in pipeline order.
const (
	StateStart          State = "start"
	StateProbeInstalled State = "probe_installed"
	StateResolveRelease State = "resolve_release"
	StateDecide         State = "decide"
	StateSkip           State = "skip"
	StateFetch          State = "fetch"
	StateInstall        State = "install"
	StateEnforcePolicy  State = "enforce_policy"
	StateDone           State = "done"
)

// Decision is the outcome of comparing the installed and remote versions.
type Decision string

const (
	// DecisionNone means the run never reached the comparison.
	DecisionNone Decision = ""
	// DecisionUpdate means the remote build is installed.
	DecisionUpdate Decision = "update"
	// DecisionSkip means the installed build is kept.
	DecisionSkip Decision = "skip"
)

// Report is the outcome of one update run. It is diagnostics only and never
// feeds back into a later decision.
type Report struct {
	// RunID identifies the run in logs.
	RunID string
	// Trigger names what started the run.
	Trigger string
	// Actor is the user@host the run executed under.
	Actor string
	// PackageID is the managed package.
	PackageID string
	// States lists the traversed states in order.
	States []State
	// Installed is the probed state before any install.
	Installed InstalledState
	// Release is the resolved release, nil when resolution failed.
	Release *ReleaseDescriptor
	// Decision is the update decision.
	Decision Decision
	// SessionID identifies the committed install session, if any.
	SessionID string
	// InstalledVersion is the confirmed version after install, if confirmation was awaited.
	InstalledVersion *PackageVersion
	// PermissionsGranted counts the permissions granted during enforcement.
	PermissionsGranted int
	// Err is the first failure of the run.
	Err error
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run reached Done.
	FinishedAt time.Time
}

// Enter appends state to the traversed states.
func (r *Report) Enter(state State) {
	r.States = append(r.States, state)
}

// Visited reports whether the run passed through state.
func (r *Report) Visited(state State) bool {
	for _, s := range r.States {
		if s == state {
			return true
		}
	}

	return false
}

// Fail records err unless an earlier failure is already recorded.
func (r *Report) Fail(err error) {
	if r.Err == nil {
		r.Err = err
	}
}

// Succeeded reports whether the run finished without any failure.
func (r *Report) Succeeded() bool {
	return r.Err == nil
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}
