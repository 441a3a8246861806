package bootstrap

import "fmt"

// Status is the code returned by the core's error export after each call
// to run.
type Status int32

// Status codes defined by the core.
const (
	StatusUnknown Status = 0x1
	StatusQuit    Status = 0x2
	StatusAbort   Status = 0x3
	StatusEOI     Status = 0x4
	StatusBye     Status = 0x5
)

var statusNames = map[Status]string{
	StatusUnknown: "unknown",
	StatusQuit:    "quit",
	StatusAbort:   "abort",
	StatusEOI:     "eoi",
	StatusBye:     "bye",
}

func (st Status) String() string {
	if name, ok := statusNames[st]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(st))
}

type loopState int

const (
	stateRunning loopState = iota
	stateFault
	stateDone
	stateBye
)

func (ls loopState) terminal() bool { return ls >= stateDone }

var loopStateNames = [...]string{"running", "fault", "done", "bye"}

func (ls loopState) String() string { return loopStateNames[ls] }

type transition struct {
	runOK bool
	next  loopState
}

var transitions = map[Status]transition{
	StatusUnknown: {runOK: false, next: stateFault},
	StatusQuit:    {runOK: false, next: stateRunning},
	StatusAbort:   {runOK: false, next: stateRunning},
	StatusEOI:     {runOK: true, next: stateDone},
	StatusBye:     {runOK: false, next: stateBye},
}

// step maps one run/error observation to the next loop state.
func step(st Status, runErr error) (loopState, error) {
	tr, ok := transitions[st]
	if !ok {
		return 0, StatusError{Status: st, Err: runErr}
	}
	if ranOK := runErr == nil; ranOK != tr.runOK {
		return 0, InvariantError{Status: st, Err: runErr}
	}
	return tr.next, nil
}

// StatusError reports an error code outside of the defined set.
type StatusError struct {
	Status Status
	Err    error
}

func (err StatusError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("unknown error code %d: %v", int32(err.Status), err.Err)
	}
	return fmt.Sprintf("unknown error code %d", int32(err.Status))
}

func (err StatusError) Unwrap() error { return err.Err }

// InvariantError reports a run outcome that contradicts the status code
// reported for it: eoi requires run to return normally, every other code
// requires it to trap.
type InvariantError struct {
	Status Status
	Err    error
}

func (err InvariantError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("run returned normally with status %v", err.Status)
	}
	return fmt.Sprintf("run trapped with status %v: %v", err.Status, err.Err)
}

func (err InvariantError) Unwrap() error { return err.Err }

// StallError reports a core that keeps faulting without consuming input.
type StallError struct {
	Status Status
	Times  int
	Err    error
}

func (err StallError) Error() string {
	return fmt.Sprintf("no input consumed after %v consecutive %v faults, last: %v", err.Times, err.Status, err.Err)
}

func (err StallError) Unwrap() error { return err.Err }
