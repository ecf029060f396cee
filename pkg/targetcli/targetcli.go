// Package targetcli drives the interactive LIO `targetcli` configuration
// REPL (C4): a single long-lived exec_open session is scraped for prompts,
// IQN lines, and attribute set-confirmations rather than parsed from
// discrete command exit codes, since targetcli does not surface per-command
// exit status over its shell.
package targetcli

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fenio/zed-csi/pkg/metrics"
	"github.com/fenio/zed-csi/pkg/transport"
	"k8s.io/klog/v2"
)

var (
	promptRegex        = regexp.MustCompile(`^/(\S)*>`)
	iqnLineRegex       = regexp.MustCompile(`o-\s+(?P<iqn>\S+)\s\.+\s\[TPGs: (?P<tpgs>\d+)\]`)
	attributeRegex     = regexp.MustCompile(`(?P<attr>[a-z_0-9]+)=(?P<val>\d+)`)
	attributeSetOKLine = regexp.MustCompile(`Parameter \w+ is now '\d+'`)
)

// Driver is an open targetcli REPL session.
type Driver struct {
	stream *transport.Stream
}

// Open starts `targetcli` over tr and waits for the first prompt.
func Open(ctx context.Context, tr transport.Transport) (*Driver, error) {
	stream, err := tr.ExecOpen(ctx, "targetcli")
	if err != nil {
		return nil, err
	}
	if _, _, err := stream.WaitFor(promptRegex); err != nil {
		return nil, fmt.Errorf("targetcli: waiting for initial prompt: %w", err)
	}
	metrics.IncTargetcliSessions()
	return &Driver{stream: stream}, nil
}

// run sends cmd and returns everything printed before the next prompt
// (the prompt line itself included, matching the raw scrape the real REPL
// produces — callers look for specific content within it, not an exact
// equality).
func (d *Driver) run(cmd string) (string, error) {
	if err := d.stream.SendLine(cmd); err != nil {
		return "", err
	}
	out, _, err := d.stream.WaitFor(promptRegex)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ListISCSIDevices returns every IQN currently configured under /iscsi.
func (d *Driver) ListISCSIDevices() ([]string, error) {
	out, err := d.run("ls /iscsi 1")
	if err != nil {
		return nil, err
	}
	matches := iqnLineRegex.FindAllStringSubmatch(out, -1)
	iqns := make([]string, 0, len(matches))
	idx := iqnLineRegex.SubexpIndex("iqn")
	for _, m := range matches {
		iqns = append(iqns, m[idx])
	}
	return iqns, nil
}

// CreateBackstore registers /dev/zvol/<volumeID> as a block backstore named
// "k8s-<normalized volumeID>" and returns that name.
func (d *Driver) CreateBackstore(volumeID string) (string, error) {
	name := "k8s-" + normalize(volumeID)
	cmd := fmt.Sprintf("/backstores/block create %s /dev/zvol/%s", name, volumeID)
	if _, err := d.run(cmd); err != nil {
		return "", err
	}
	return name, nil
}

// CreateTarget creates an iSCSI target with IQN "<baseIQN>:<normalized
// volumeID>" and returns that IQN.
func (d *Driver) CreateTarget(baseIQN, volumeID string) (string, error) {
	iqn := baseIQN + ":" + normalize(volumeID)
	cmd := fmt.Sprintf("/iscsi create %s", iqn)
	if _, err := d.run(cmd); err != nil {
		return "", err
	}
	return iqn, nil
}

// SetTargetBackstore wires backstore as a LUN of iqn's first target portal
// group.
func (d *Driver) SetTargetBackstore(iqn, backstore string) error {
	cmd := fmt.Sprintf("/iscsi/%s/tpg1/luns create /backstores/block/%s", iqn, backstore)
	_, err := d.run(cmd)
	return err
}

// SetAttribute sets attr=val on iqn's tpg1, succeeding only when the output
// matches the attribute-set-success regex — targetcli gives no exit code,
// so an absent confirmation must be treated as failure, never success.
func (d *Driver) SetAttribute(iqn, attr, val string) error {
	cmd := fmt.Sprintf("/iscsi/%s/tpg1 set attribute %s=%s", iqn, attr, val)
	out, err := d.run(cmd)
	if err != nil {
		return err
	}
	if !attributeSetOKLine.MatchString(out) {
		return fmt.Errorf("targetcli: setting attribute %s=%s on %s: no confirmation in output: %q", attr, val, iqn, out)
	}
	return nil
}

// Close exits the REPL and waits for the child to terminate.
func (d *Driver) Close() error {
	defer metrics.DecTargetcliSessions()
	if err := d.stream.SendLine("exit"); err != nil {
		return err
	}
	_, _, err := d.stream.WaitForCompletion()
	if err != nil {
		klog.V(3).Infof("targetcli: close: %v", err)
	}
	return nil
}

// normalize turns a volume_id into the form used in IQNs and backstore
// names: every "/" replaced with "-".
func normalize(volumeID string) string {
	out := make([]byte, len(volumeID))
	for i := 0; i < len(volumeID); i++ {
		if volumeID[i] == '/' {
			out[i] = '-'
		} else {
			out[i] = volumeID[i]
		}
	}
	return string(out)
}
