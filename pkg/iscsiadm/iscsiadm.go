// Package iscsiadm implements the iscsiadm driver (C5): discovering,
// logging in and out of, and locating the device for an iSCSI session, all
// shelled out to the `iscsiadm` CLI.
package iscsiadm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fenio/zed-csi/pkg/transport"
	"k8s.io/klog/v2"
)

var sessionRegex = regexp.MustCompile(`(?P<ip>\d+\.\d+\.\d+\.\d+):(?P<port>\d+),\d+ (?P<iqn>\S+) `)

const (
	diskPollInterval = 100 * time.Millisecond
	diskPollAttempts = 30
)

// Session is one row of `iscsiadm -m session` output.
type Session struct {
	IP   string
	Port string
	IQN  string
}

// Driver drives the `iscsiadm` CLI over a transport.
type Driver struct {
	tr transport.Transport
}

// New returns an iscsiadm driver bound to tr.
func New(tr transport.Transport) *Driver {
	return &Driver{tr: tr}
}

// GetTarget computes the target IQN from a base IQN and volume id — a pure
// string computation, no shell command involved.
func GetTarget(baseIQN, volumeID string) string {
	return baseIQN + ":" + strings.ReplaceAll(volumeID, "/", "-")
}

// DevicePath computes the by-path device node iscsiadm creates for a
// logged-in session. portal is substituted whole (including its own port),
// matching the reference implementation's device-path formula.
func DevicePath(portal, iqn string) string {
	return fmt.Sprintf("/dev/disk/by-path/ip-%s:3260-iscsi-%s-lun-0", portal, iqn)
}

// Sessions runs `iscsiadm -m session` and parses active sessions. A non-zero
// exit (no sessions, or the service isn't running) yields an empty list
// rather than an error.
func (d *Driver) Sessions(ctx context.Context) ([]Session, error) {
	out, code, err := d.tr.Exec(ctx, "iscsiadm -m session")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var sessions []Session
	ipIdx := sessionRegex.SubexpIndex("ip")
	portIdx := sessionRegex.SubexpIndex("port")
	iqnIdx := sessionRegex.SubexpIndex("iqn")
	for _, line := range strings.Split(out, "\n") {
		m := sessionRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sessions = append(sessions, Session{IP: m[ipIdx], Port: m[portIdx], IQN: m[iqnIdx]})
	}
	return sessions, nil
}

// Login establishes a session against iqn at portal. If a session for iqn
// already exists, this is a no-op success (idempotent).
func (d *Driver) Login(ctx context.Context, iqn, portal string) error {
	sessions, err := d.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.IQN == iqn {
			klog.V(4).Infof("iscsiadm: session for %s already exists, skipping login", iqn)
			return nil
		}
	}
	cmd := fmt.Sprintf("iscsiadm --mode node --targetname '%s' --portal '%s' --login", iqn, portal)
	_, err = d.tr.ExecChecked(ctx, cmd)
	return err
}

// Logout tears down the session for iqn at portal. Failure is not fatal.
func (d *Driver) Logout(ctx context.Context, iqn, portal string) {
	cmd := fmt.Sprintf("iscsiadm --mode node --targetname '%s' --portal '%s' --logout", iqn, portal)
	_, code, err := d.tr.Exec(ctx, cmd)
	if err != nil || code != 0 {
		klog.Warningf("iscsiadm: logout of %s at %s failed (code=%d, err=%v), ignoring", iqn, portal, code, err)
	}
}

// Discovery runs sendtargets discovery against portal.
func (d *Driver) Discovery(ctx context.Context, portal string) error {
	cmd := fmt.Sprintf("iscsiadm -m discovery -t sendtargets -p '%s'", portal)
	_, err := d.tr.ExecChecked(ctx, cmd)
	return err
}

// WaitForDisk polls for the by-path device node of iqn/portal to appear,
// every 100ms for up to 30 attempts (3s total), failing with a "timed out"
// error on exhaustion.
func (d *Driver) WaitForDisk(ctx context.Context, iqn, portal string) (string, error) {
	device := DevicePath(portal, iqn)
	cmd := fmt.Sprintf("test -b '%s'", device)
	for attempt := 0; attempt < diskPollAttempts; attempt++ {
		_, code, err := d.tr.Exec(ctx, cmd)
		if err != nil {
			return "", err
		}
		if code == 0 {
			return device, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(diskPollInterval):
		}
	}
	return "", fmt.Errorf("iscsiadm: timed out waiting for %s to appear", device)
}
