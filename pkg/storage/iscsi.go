package storage

import (
	"context"

	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/fenio/zed-csi/pkg/iscsiadm"
	"github.com/fenio/zed-csi/pkg/mount"
	"github.com/fenio/zed-csi/pkg/targetcli"
	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/fenio/zed-csi/pkg/utils"
	"github.com/fenio/zed-csi/pkg/zfs"
	"k8s.io/klog/v2"
)

// ISCSIModule implements Module for zvol-backed, LIO-exported volumes.
type ISCSIModule struct {
	opts ISCSIOptions
	zfs  ZFSOptions
	tr   transport.Transport
}

// NewISCSIModule binds an iSCSI module to opts/zfsOpts over tr.
func NewISCSIModule(opts ISCSIOptions, zfsOpts ZFSOptions, tr transport.Transport) *ISCSIModule {
	return &ISCSIModule{opts: opts, zfs: zfsOpts, tr: tr}
}

// Create ensures the zvol dataset dataset exists, sized, with the
// configured ZFS attributes.
func (m *ISCSIModule) Create(ctx context.Context, name string, size uint64) (string, error) {
	datasetName := DatasetName(m.zfs.ParentDataset, name)
	zfsDriver := zfs.New(m.tr)

	existing, err := zfsDriver.GetDataset(ctx, datasetName)
	if err != nil {
		return "", err
	}
	if existing == nil {
		if err := zfsDriver.CreateDataset(ctx, datasetName, size); err != nil {
			return "", err
		}
	}
	if err := zfsDriver.SetAttributes(ctx, datasetName, withBookkeeping(m.zfs.Attributes)); err != nil {
		return "", err
	}
	return datasetName, nil
}

// Delete is a safety no-op: this driver never destroys ZFS datasets
// automatically, per spec.md §9's explicit reclaim-policy decision.
func (m *ISCSIModule) Delete(_ context.Context, volumeID string) error {
	klog.Warningf("iscsi: delete_volume(%s) is a no-op by design, dataset is left in place", volumeID)
	return nil
}

// Publish exports volumeID's zvol as an iSCSI target via targetcli, wiring
// the backstore, target, LUN, and every configured attribute.
func (m *ISCSIModule) Publish(ctx context.Context, volumeID string) error {
	drv, err := targetcli.Open(ctx, m.tr)
	if err != nil {
		return err
	}
	defer drv.Close()

	backstore, err := drv.CreateBackstore(volumeID)
	if err != nil {
		return err
	}
	iqn, err := drv.CreateTarget(m.opts.BaseIQN, volumeID)
	if err != nil {
		return err
	}
	if err := drv.SetTargetBackstore(iqn, backstore); err != nil {
		return err
	}
	for k, v := range m.opts.Attributes {
		if err := drv.SetAttribute(iqn, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Unpublish is a safety no-op: the target/backstore are never torn down
// automatically, per spec.md §9.
func (m *ISCSIModule) Unpublish(_ context.Context, volumeID string) error {
	klog.Warningf("iscsi: unpublish_volume(%s) is a no-op by design, target is left in place", volumeID)
	return nil
}

// Stage discovers and logs into the target, waits for its block device,
// formats it if unformatted, and mounts it at stagingPath.
func (m *ISCSIModule) Stage(ctx context.Context, volumeID, stagingPath string) error {
	iqn := iscsiadm.GetTarget(m.opts.BaseIQN, volumeID)
	scsi := iscsiadm.New(m.tr)

	if err := scsi.Discovery(ctx, m.opts.TargetPortal); err != nil {
		return err
	}
	if err := scsi.Login(ctx, iqn, m.opts.TargetPortal); err != nil {
		return err
	}
	disk, err := scsi.WaitForDisk(ctx, iqn, m.opts.TargetPortal)
	if err != nil {
		return err
	}

	mountDriver := mount.New(m.tr)
	dev, err := mountDriver.GetBlockDevice(ctx, disk)
	if err != nil {
		return err
	}
	if dev == nil || dev.FSType == "" {
		if err := mountDriver.Mkfs(ctx, disk, m.opts.FSType); err != nil {
			return err
		}
	}
	return mountDriver.Mount(ctx, m.opts.FSType, disk, stagingPath)
}

// Unstage unmounts stagingPath and logs out of the target. The unmount is
// retried: the kernel can hold the block device busy for a moment after the
// last reader/writer on it closes.
func (m *ISCSIModule) Unstage(ctx context.Context, volumeID, stagingPath string) error {
	iqn := iscsiadm.GetTarget(m.opts.BaseIQN, volumeID)
	mountDriver := mount.New(m.tr)

	retryCfg := utils.DeletionRetryConfig("unmount " + stagingPath)
	retryCfg.MaxAttempts = 3
	if err := utils.WithRetryNoResult(ctx, retryCfg, func() error {
		return mountDriver.Unmount(ctx, stagingPath)
	}); err != nil {
		return err
	}
	iscsiadm.New(m.tr).Logout(ctx, iqn, m.opts.TargetPortal)
	return nil
}

// Mount bind-mounts stagingPath onto targetPath.
func (m *ISCSIModule) Mount(ctx context.Context, _ string, stagingPath, targetPath string) error {
	return mount.New(m.tr).Mount(ctx, fstype.Bind, stagingPath, targetPath)
}

// Unmount unmounts targetPath.
func (m *ISCSIModule) Unmount(ctx context.Context, _ string, targetPath string) error {
	return mount.New(m.tr).Unmount(ctx, targetPath)
}
