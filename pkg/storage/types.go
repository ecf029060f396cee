package storage

import "github.com/fenio/zed-csi/pkg/fstype"

// Kind tags which variant a StorageInfo holds.
type Kind string

const (
	KindISCSI Kind = "iscsi"
	KindNFS   Kind = "nfs"
)

// ZFSOptions is the ZFS-side configuration shared by every backing flavor.
type ZFSOptions struct {
	ParentDataset string            `json:"parentDataset"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// ISCSIOptions is the iSCSI-specific half of an ISCSI StorageInfo.
type ISCSIOptions struct {
	BaseIQN      string            `json:"baseIqn"`
	TargetPortal string            `json:"targetPortal"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	FSType       fstype.FilesystemType `json:"fsType"`
}

// NFSOptions is the NFS-specific half of an NFS StorageInfo.
type NFSOptions struct {
	Host       string `json:"host"`
	ExportSpec string `json:"exportSpec"`
}

// StorageInfo is the tagged union persisted per volume id: either an ISCSI
// or an NFS backing, each paired with the ZFS dataset options used to
// create/locate the underlying dataset.
type StorageInfo struct {
	Type  Kind          `json:"type"`
	ISCSI *ISCSIOptions `json:"iscsi,omitempty"`
	NFS   *NFSOptions   `json:"nfs,omitempty"`
	ZFS   ZFSOptions    `json:"zfs"`
}

// DatasetName returns parent_dataset + name, the volume_id per spec.md §3
// invariant 4.
func DatasetName(parentDataset, name string) string {
	return parentDataset + name
}
