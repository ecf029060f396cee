// Package transport implements the pluggable shell transport (C1) and the
// interactive command stream built on top of it (C2). Every storage-host
// operation in this driver — zfs, targetcli, iscsiadm, mount/umount/mkfs,
// findmnt, lsblk — ultimately runs through a Transport obtained here, never
// through a native client library, matching the operational model of the
// storage appliances this driver targets.
package transport

import "context"

// Transport is the common contract every variant (Local, Chroot, SSH)
// implements. A Transport must be Connect-ed before Exec/ExecChecked/
// ExecOpen are called; Disconnect releases any held resources (for SSH,
// the underlying network connection).
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	// Exec runs a command to completion and returns its merged
	// stdout+stderr output and exit code. A non-nil error indicates the
	// command could not be run at all (transport-level failure), not a
	// non-zero exit.
	Exec(ctx context.Context, cmd string) (output string, code int, err error)
	// ExecChecked is Exec plus exit-code checking: a non-zero exit
	// becomes a *CommandFailed error.
	ExecChecked(ctx context.Context, cmd string) (output string, err error)
	// ExecOpen starts cmd and returns an interactive Stream for
	// long-lived, scripted sessions (targetcli).
	ExecOpen(ctx context.Context, cmd string) (*Stream, error)
	Disconnect() error
}

// New builds the Transport variant described by cfg.
func New(cfg Config) Transport {
	if cfg.Kind == SSH {
		return newSSHTransport(cfg)
	}
	return newProcessTransport(cfg)
}
