package storage

import (
	"context"
	"fmt"

	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/fenio/zed-csi/pkg/mount"
	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/fenio/zed-csi/pkg/utils"
	"github.com/fenio/zed-csi/pkg/zfs"
	"k8s.io/klog/v2"
)

// ExportDefaults are the `sharenfs` option defaults applied when the
// request does not supply its own export spec.
const ExportDefaults = "wdelay,nohide,crossmnt,no_root_squash,no_subtree_check,mountpoint,sec=sys,rw,secure,no_root_squash,no_all_squash"

// LocalCIDRs are appended to ExportDefaults as the default write/read-only
// client allow-list.
const LocalCIDRs = "@192.168.0.0/16:@172.16.0.0/12:@10.0.0.0/8"

// DefaultExportSpec builds the default `sharenfs` value.
func DefaultExportSpec() string {
	return fmt.Sprintf("%s,rw=%s,ro", ExportDefaults, LocalCIDRs)
}

// NFSModule implements Module for ZFS-filesystem-backed NFS exports.
type NFSModule struct {
	opts NFSOptions
	zfs  ZFSOptions
	tr   transport.Transport
}

// NewNFSModule binds an NFS module to opts/zfsOpts over tr.
func NewNFSModule(opts NFSOptions, zfsOpts ZFSOptions, tr transport.Transport) *NFSModule {
	return &NFSModule{opts: opts, zfs: zfsOpts, tr: tr}
}

// Create ensures the ZFS filesystem dataset exists (no zvol size) and sets
// `sharenfs` alongside any configured ZFS attributes.
func (m *NFSModule) Create(ctx context.Context, name string, _ uint64) (string, error) {
	datasetName := DatasetName(m.zfs.ParentDataset, name)
	zfsDriver := zfs.New(m.tr)

	existing, err := zfsDriver.GetDataset(ctx, datasetName)
	if err != nil {
		return "", err
	}
	if existing == nil {
		if err := zfsDriver.CreateDataset(ctx, datasetName, 0); err != nil {
			return "", err
		}
	}

	attrs := withBookkeeping(m.zfs.Attributes)
	exportSpec := m.opts.ExportSpec
	if exportSpec == "" {
		exportSpec = DefaultExportSpec()
	}
	attrs["sharenfs"] = exportSpec

	if err := zfsDriver.SetAttributes(ctx, datasetName, attrs); err != nil {
		return "", err
	}
	return datasetName, nil
}

// Delete, Publish, Unpublish, Stage, Unstage are all no-ops for NFS: the
// export exists purely as a ZFS dataset property, nothing separate to
// create or tear down, and the node mounts directly in Mount/Unmount.
func (m *NFSModule) Delete(_ context.Context, volumeID string) error {
	klog.V(4).Infof("nfs: delete_volume(%s) is a no-op", volumeID)
	return nil
}

func (m *NFSModule) Publish(_ context.Context, _ string) error   { return nil }
func (m *NFSModule) Unpublish(_ context.Context, _ string) error { return nil }
func (m *NFSModule) Stage(_ context.Context, _, _ string) error  { return nil }
func (m *NFSModule) Unstage(_ context.Context, _, _ string) error {
	return nil
}

// Mount mounts "<host>:/<volumeID>" at targetPath.
func (m *NFSModule) Mount(ctx context.Context, volumeID string, _ string, targetPath string) error {
	source := fmt.Sprintf("%s:/%s", m.opts.Host, volumeID)
	return mount.New(m.tr).Mount(ctx, fstype.NFS, source, targetPath)
}

// Unmount unmounts targetPath, retrying past a transient "target is busy"
// while the kernel finishes releasing the NFS mount's last reference.
func (m *NFSModule) Unmount(ctx context.Context, _ string, targetPath string) error {
	mountDriver := mount.New(m.tr)
	retryCfg := utils.DeletionRetryConfig("unmount " + targetPath)
	retryCfg.MaxAttempts = 3
	return utils.WithRetryNoResult(ctx, retryCfg, func() error {
		return mountDriver.Unmount(ctx, targetPath)
	})
}
