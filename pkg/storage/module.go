package storage

import (
	"context"
	"time"
)

// Module is a per-backend state machine implementing the eight CSI volume
// lifecycle operations. A module is constructed fresh for each CSI call from
// a StorageInfo (either parsed from request parameters or loaded from the
// metadata store) and a live, already-connected transport; it is never
// reused across calls.
//
// State machine: absent -> created -> published -> staged -> mounted, with
// inverse transitions. Every transition below is idempotent: re-entering a
// state the volume is already in is a success, not an error.
type Module interface {
	// Create provisions the backing dataset for name (a short name, not
	// yet prefixed by the parent dataset) and returns the resulting
	// volume_id. size is in bytes; zero means "no fixed size" (NFS;
	// iSCSI always has a nonzero size).
	Create(ctx context.Context, name string, size uint64) (volumeID string, err error)
	Delete(ctx context.Context, volumeID string) error
	Publish(ctx context.Context, volumeID string) error
	Unpublish(ctx context.Context, volumeID string) error
	Stage(ctx context.Context, volumeID, stagingPath string) error
	Unstage(ctx context.Context, volumeID, stagingPath string) error
	Mount(ctx context.Context, volumeID, stagingPath, targetPath string) error
	Unmount(ctx context.Context, volumeID, targetPath string) error
}

var (
	_ Module = (*ISCSIModule)(nil)
	_ Module = (*NFSModule)(nil)
)

// timeNow is the creation-timestamp source for bookkeepingAttributes,
// overridden in tests for a deterministic zed-csi:created_at value.
var timeNow = time.Now

// bookkeepingAttributes returns the zed-csi:-namespaced ZFS user properties
// every Create writes onto a managed dataset (SPEC_FULL.md §5's
// VolumeMetadata envelope), so an operator running `zfs get all` can tell
// which datasets this driver owns independent of the metadata store.
func bookkeepingAttributes() map[string]string {
	return map[string]string{
		"zed-csi:managed_by": "zed-csi",
		"zed-csi:created_at": timeNow().UTC().Format(time.RFC3339),
	}
}

// withBookkeeping merges attrs with bookkeepingAttributes(), attrs taking
// precedence on key collision.
func withBookkeeping(attrs map[string]string) map[string]string {
	merged := bookkeepingAttributes()
	for k, v := range attrs {
		merged[k] = v
	}
	return merged
}
