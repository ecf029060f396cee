// Package mount implements the mount driver (C6): mount/umount/mkfs and
// block-device/mount-table inspection, all shelled out over a transport
// (never via a native mount(2) syscall binding — the node role needs to run
// these through the same pluggable transport as every other component,
// including the chroot and SSH variants).
package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/fenio/zed-csi/pkg/transport"
)

// JoinMountOptions joins mount options with commas.
func JoinMountOptions(options []string) string {
	if len(options) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(options[0])
	for i := 1; i < len(options); i++ {
		builder.WriteString(",")
		builder.WriteString(options[i])
	}
	return builder.String()
}

const (
	findmntColumns = "id,source,target,fstype,label,options,partuuid,avail,size,used"
	lsblkColumns   = "name,rm,type,size,fstype,ro"
)

// BlockDevice is one row of `lsblk -J` output.
type BlockDevice struct {
	Name   string `json:"name"`
	RM     string `json:"rm"`
	Type   string `json:"type"`
	Size   string `json:"size"`
	FSType string `json:"fstype"`
	RO     string `json:"ro"`
}

type lsblkDocument struct {
	BlockDevices []BlockDevice `json:"blockdevices"`
}

// MountEntry is one row of `findmnt -J` output.
type MountEntry struct {
	ID       int    `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	FSType   string `json:"fstype"`
	Label    string `json:"label"`
	Options  string `json:"options"`
	PartUUID string `json:"partuuid"`
	Avail    string `json:"avail"`
	Size     string `json:"size"`
	Used     string `json:"used"`
}

type findmntDocument struct {
	Filesystems []MountEntry `json:"filesystems"`
}

// Driver drives mount/umount/mkfs.*/findmnt/lsblk over a transport.
type Driver struct {
	tr transport.Transport
}

// New returns a mount driver bound to tr.
func New(tr transport.Transport) *Driver {
	return &Driver{tr: tr}
}

// Mount runs `mount [-t type] [-o opts] '<device>' '<path>'`, pre-creating
// path with `mkdir -p`. Success is exit 0 or exit 32 with "already mounted"
// in the output (idempotent); anything else is a *transport.CommandFailed.
func (d *Driver) Mount(ctx context.Context, fs fstype.FilesystemType, device, path string) error {
	if _, err := d.tr.ExecChecked(ctx, fmt.Sprintf("mkdir -p '%s'", path)); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("mount")
	if t, ok := fs.MountType(); ok {
		fmt.Fprintf(&b, " -t %s", t)
	}
	if o, ok := fs.MountOptions(); ok {
		fmt.Fprintf(&b, " -o %s", o)
	}
	fmt.Fprintf(&b, " '%s' '%s'", device, path)

	out, code, err := d.tr.Exec(ctx, b.String())
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	if code == 32 && strings.Contains(out, "already mounted") {
		return nil
	}
	return &transport.CommandFailed{Output: out, Code: code}
}

// Unmount runs `umount '<path>'`. Success is exit 0 or exit 32 with "not
// mounted" in the output.
func (d *Driver) Unmount(ctx context.Context, path string) error {
	cmd := fmt.Sprintf("umount '%s'", path)
	out, code, err := d.tr.Exec(ctx, cmd)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	if code == 32 && strings.Contains(out, "not mounted") {
		return nil
	}
	return &transport.CommandFailed{Output: out, Code: code}
}

// Mkfs formats path with the mkfs tool for fs. Fails if fs does not support
// formatting.
func (d *Driver) Mkfs(ctx context.Context, path string, fs fstype.FilesystemType) error {
	tool, ok := fs.Mkfs()
	if !ok {
		return fmt.Errorf("mount: filesystem %q does not support formatting", fs)
	}
	_, err := d.tr.ExecChecked(ctx, fmt.Sprintf("%s '%s'", tool, path))
	return err
}

// GetBlockDevice runs `lsblk -J -o <cols> '<path>'` and returns the first
// (and only) entry, or nil if the device doesn't exist.
func (d *Driver) GetBlockDevice(ctx context.Context, path string) (*BlockDevice, error) {
	cmd := fmt.Sprintf("lsblk -J -o %s '%s'", lsblkColumns, path)
	out, code, err := d.tr.Exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var doc lsblkDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return nil, fmt.Errorf("mount: parsing lsblk output for %s: %w", path, err)
	}
	if len(doc.BlockDevices) == 0 {
		return nil, nil
	}
	return &doc.BlockDevices[0], nil
}

// GetMounts runs `findmnt -J -o <cols>` and returns every mounted
// filesystem.
func (d *Driver) GetMounts(ctx context.Context) ([]MountEntry, error) {
	cmd := fmt.Sprintf("findmnt -J -o %s", findmntColumns)
	out, code, err := d.tr.Exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var doc findmntDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return nil, fmt.Errorf("mount: parsing findmnt output: %w", err)
	}
	return doc.Filesystems, nil
}

// GetMount runs `findmnt -J -o <cols> '<path>'` and returns the single
// matching entry, or nil (not an error) when path is not mounted.
func (d *Driver) GetMount(ctx context.Context, path string) (*MountEntry, error) {
	cmd := fmt.Sprintf("findmnt -J -o %s '%s'", findmntColumns, path)
	out, code, err := d.tr.Exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var doc findmntDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return nil, fmt.Errorf("mount: parsing findmnt output for %s: %w", path, err)
	}
	if len(doc.Filesystems) == 0 {
		return nil, nil
	}
	return &doc.Filesystems[0], nil
}
