// Package zfs implements the ZFS driver (C3): parsing `zfs list/get/set/create`
// output over a shell transport. No native ZFS library is used — every
// operation is a shelled-out command, matching the driver's operational model.
package zfs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fenio/zed-csi/pkg/transport"
	"k8s.io/klog/v2"
)

// Dataset is one row of `zfs list -H` output.
type Dataset struct {
	Name       string
	Used       string
	Avail      string
	Refer      string
	Mountpoint string
}

// Driver drives the `zfs` CLI over a transport.
type Driver struct {
	tr transport.Transport
}

// New returns a ZFS driver bound to tr. tr must already be connected.
func New(tr transport.Transport) *Driver {
	return &Driver{tr: tr}
}

// ListDatasets runs `zfs list -H` and parses its tab-separated rows. Rows
// that don't have exactly 5 columns are skipped silently (stray banner/log
// lines some zfs builds emit on stderr would otherwise break parsing).
func (d *Driver) ListDatasets(ctx context.Context) ([]Dataset, error) {
	out, err := d.tr.ExecChecked(ctx, "zfs list -H")
	if err != nil {
		return nil, err
	}
	var datasets []Dataset
	for _, line := range splitLines(out) {
		cols := strings.Split(line, "\t")
		if len(cols) != 5 {
			continue
		}
		datasets = append(datasets, Dataset{
			Name:       cols[0],
			Used:       cols[1],
			Avail:      cols[2],
			Refer:      cols[3],
			Mountpoint: cols[4],
		})
	}
	return datasets, nil
}

// GetDataset runs `zfs get -H all '<name>'`. A non-zero exit (the dataset
// does not exist) returns (nil, nil) rather than an error. Property rows are
// 4 tab-separated columns {dataset, property, value, source}; malformed rows
// are skipped silently.
func (d *Driver) GetDataset(ctx context.Context, name string) (map[string]string, error) {
	cmd := fmt.Sprintf("zfs get -H all '%s'", name)
	out, code, err := d.tr.Exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	props := map[string]string{}
	for _, line := range splitLines(out) {
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			continue
		}
		props[cols[1]] = cols[2]
	}
	return props, nil
}

// CreateDataset creates name, a zvol when size is non-zero. If name contains
// "/", every proper ancestor path except the final component is pre-created
// in order with its own `zfs create`; ancestor failures are ignored (the
// ancestor may already exist). The final create is checked and its error
// message trimmed.
func (d *Driver) CreateDataset(ctx context.Context, name string, size uint64) error {
	for _, ancestor := range properAncestors(name) {
		cmd := fmt.Sprintf("zfs create '%s'", ancestor)
		if _, _, err := d.tr.Exec(ctx, cmd); err != nil {
			klog.V(3).Infof("zfs: ancestor create transport error for %q: %v (ignored)", ancestor, err)
		}
	}

	var cmd string
	if size > 0 {
		cmd = fmt.Sprintf("zfs create -V %d '%s'", size, name)
	} else {
		cmd = fmt.Sprintf("zfs create '%s'", name)
	}
	out, err := d.tr.ExecChecked(ctx, cmd)
	if err != nil {
		if cf, ok := err.(*transport.CommandFailed); ok {
			return fmt.Errorf("zfs create %s: %s", name, strings.TrimSpace(cf.Output))
		}
		return err
	}
	_ = out
	return nil
}

// SetAttributes issues a single `zfs set` with every key=value pair when attrs
// is non-empty; a no-op otherwise. Keys are sorted so the emitted command is
// deterministic regardless of map iteration order.
func (d *Driver) SetAttributes(ctx context.Context, name string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("zfs set")
	for _, k := range keys {
		fmt.Fprintf(&b, " '%s=%s'", k, attrs[k])
	}
	fmt.Fprintf(&b, " %s", name)
	_, err := d.tr.ExecChecked(ctx, b.String())
	return err
}

// properAncestors returns every proper ancestor path of name (excluding name
// itself), shallowest first, so "a/b/c" yields ["a", "a/b"].
func properAncestors(name string) []string {
	parts := strings.Split(name, "/")
	if len(parts) < 2 {
		return nil
	}
	var out []string
	acc := parts[0]
	out = append(out, acc)
	for _, p := range parts[1 : len(parts)-1] {
		acc = acc + "/" + p
		out = append(out, acc)
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
