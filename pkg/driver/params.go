package driver

import (
	"fmt"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/fenio/zed-csi/pkg/storage"
)

const defaultVolumeSize = 1 << 30 // 1 GiB

// Static errors for parameter parsing.
var (
	errMissingType          = fmt.Errorf("parameters: %q is required", "type")
	errUnknownType          = fmt.Errorf("parameters: unsupported %q", "type")
	errMissingParentDataset = fmt.Errorf("parameters: %q is required", "zfs.parentDataset")
	errMissingBaseIQN       = fmt.Errorf("parameters: %q is required for zfs-iscsi", "baseIqn")
	errMissingTargetPortal  = fmt.Errorf("parameters: %q is required for zfs-iscsi", "targetPortal")
	errMissingHost          = fmt.Errorf("parameters: %q is required for zfs-nfs", "host")
)

const (
	paramType          = "type"
	paramParentDataset = "zfs.parentDataset"
	zfsAttrPrefix      = "zfs.attr."
	paramBaseIQN       = "baseIqn"
	paramTargetPortal  = "targetPortal"
	iscsiAttrPrefix    = "attr."
	paramFSType        = "fsType"
	paramHost          = "host"
	paramExport        = "export"
	paramPVCName       = "csi.storage.k8s.io/pvc/name"
	paramPVCNamespace  = "csi.storage.k8s.io/pvc/namespace"

	typeZFSISCSI = "zfs-iscsi"
	typeZFSNFS   = "zfs-nfs"
)

// parseStorageInfo builds a storage.StorageInfo from CSI CreateVolume
// parameters, per spec.md §6's "Request-carried parameters" table.
func parseStorageInfo(params map[string]string) (storage.StorageInfo, error) {
	typ := params[paramType]
	if typ == "" {
		return storage.StorageInfo{}, errMissingType
	}
	if typ != typeZFSISCSI && typ != typeZFSNFS {
		return storage.StorageInfo{}, fmt.Errorf("%w: %q", errUnknownType, typ)
	}

	parentDataset := params[paramParentDataset]
	if parentDataset == "" {
		return storage.StorageInfo{}, errMissingParentDataset
	}
	if !strings.HasSuffix(parentDataset, "/") {
		parentDataset += "/"
	}

	zfsOpts := storage.ZFSOptions{ParentDataset: parentDataset, Attributes: extractAttrs(params, zfsAttrPrefix)}

	switch typ {
	case typeZFSISCSI:
		baseIQN := params[paramBaseIQN]
		if baseIQN == "" {
			return storage.StorageInfo{}, errMissingBaseIQN
		}
		targetPortal := params[paramTargetPortal]
		if targetPortal == "" {
			return storage.StorageInfo{}, errMissingTargetPortal
		}
		fsType := fstype.ParseFilesystemType(params[paramFSType])

		return storage.StorageInfo{
			Type: storage.KindISCSI,
			ISCSI: &storage.ISCSIOptions{
				BaseIQN:      baseIQN,
				TargetPortal: targetPortal,
				Attributes:   extractAttrs(params, iscsiAttrPrefix),
				FSType:       fsType,
			},
			ZFS: zfsOpts,
		}, nil

	case typeZFSNFS:
		host := params[paramHost]
		if host == "" {
			return storage.StorageInfo{}, errMissingHost
		}
		return storage.StorageInfo{
			Type: storage.KindNFS,
			NFS:  &storage.NFSOptions{Host: host, ExportSpec: params[paramExport]},
			ZFS:  zfsOpts,
		}, nil

	default:
		return storage.StorageInfo{}, fmt.Errorf("%w: %q", errUnknownType, typ)
	}
}

func extractAttrs(params map[string]string, prefix string) map[string]string {
	var attrs map[string]string
	for k, v := range params {
		if strings.HasPrefix(k, prefix) {
			if attrs == nil {
				attrs = map[string]string{}
			}
			attrs[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return attrs
}

// volumeName picks the short name CreateVolume uses to build the dataset
// name: "<namespace>/<name>" when both PVC parameters are present,
// otherwise the request's own Name.
func volumeName(req *csi.CreateVolumeRequest) string {
	params := req.GetParameters()
	name := params[paramPVCName]
	namespace := params[paramPVCNamespace]
	if name != "" && namespace != "" {
		return namespace + "/" + name
	}
	return req.GetName()
}

// provisionedSize returns max(limit_bytes, required_bytes), or a 1 GiB
// default when capacity_range is absent.
func provisionedSize(cr *csi.CapacityRange) uint64 {
	if cr == nil {
		return defaultVolumeSize
	}
	limit := cr.GetLimitBytes()
	required := cr.GetRequiredBytes()
	size := required
	if limit > size {
		size = limit
	}
	if size <= 0 {
		return defaultVolumeSize
	}
	return uint64(size)
}

// protocolLabel maps a storage.Kind to the metrics package's protocol label.
func protocolLabel(kind storage.Kind) string {
	switch kind {
	case storage.KindISCSI:
		return "iscsi"
	case storage.KindNFS:
		return "nfs"
	default:
		return "unknown"
	}
}
