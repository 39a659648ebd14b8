// Package chat implements the Bubble Tea terminal widget for lawggle-ai.
package chat

import session "lawggle-ai/internal/usecase/chat"

// SnapshotMsg carries a session snapshot into the update loop. Snapshots
// may arrive out of order; older ones are dropped by Seq.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// StartDoneMsg signals that thread bootstrap finished.
type StartDoneMsg struct {
	Err error
}

// SendDoneMsg signals that a submitted message's run chain finished.
type SendDoneMsg struct {
	Err error
}

// StalledMsg signals that the watchdog gave up on a stream.
type StalledMsg struct {
	Reason string
}

// QuitMsg signals the program to exit.
type QuitMsg struct{}
