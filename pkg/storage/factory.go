package storage

import (
	"fmt"

	"github.com/fenio/zed-csi/pkg/transport"
)

// NewModule builds the Module matching info.Type over tr.
func NewModule(info StorageInfo, tr transport.Transport) (Module, error) {
	switch info.Type {
	case KindISCSI:
		if info.ISCSI == nil {
			return nil, fmt.Errorf("storage: iscsi StorageInfo missing options")
		}
		return NewISCSIModule(*info.ISCSI, info.ZFS, tr), nil
	case KindNFS:
		if info.NFS == nil {
			return nil, fmt.Errorf("storage: nfs StorageInfo missing options")
		}
		return NewNFSModule(*info.NFS, info.ZFS, tr), nil
	default:
		return nil, fmt.Errorf("storage: unknown StorageInfo type %q", info.Type)
	}
}
