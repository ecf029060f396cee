package driver

import (
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/fenio/zed-csi/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageInfoISCSI(t *testing.T) {
	params := map[string]string{
		paramType:          typeZFSISCSI,
		paramParentDataset: "tank/csi",
		paramBaseIQN:       "iqn.2020.org.ex:a",
		paramTargetPortal:  "10.0.0.1:3260",
		"attr.authentication": "0",
		"zfs.attr.compression": "lz4",
		paramFSType:        "xfs",
	}

	info, err := parseStorageInfo(params)
	require.NoError(t, err)

	assert.Equal(t, storage.KindISCSI, info.Type)
	require.NotNil(t, info.ISCSI)
	assert.Equal(t, "iqn.2020.org.ex:a", info.ISCSI.BaseIQN)
	assert.Equal(t, "10.0.0.1:3260", info.ISCSI.TargetPortal)
	assert.Equal(t, map[string]string{"authentication": "0"}, info.ISCSI.Attributes)
	assert.Equal(t, fstype.XFS, info.ISCSI.FSType)
	assert.Equal(t, "tank/csi/", info.ZFS.ParentDataset)
	assert.Equal(t, map[string]string{"compression": "lz4"}, info.ZFS.Attributes)
}

func TestParseStorageInfoParentDatasetTrailingSlashEnforced(t *testing.T) {
	info, err := parseStorageInfo(map[string]string{
		paramType:          typeZFSNFS,
		paramParentDataset: "tank/nfs/",
		paramHost:          "10.0.0.2",
	})
	require.NoError(t, err)
	assert.Equal(t, "tank/nfs/", info.ZFS.ParentDataset)
}

func TestParseStorageInfoNFS(t *testing.T) {
	info, err := parseStorageInfo(map[string]string{
		paramType:          typeZFSNFS,
		paramParentDataset: "tank/nfs",
		paramHost:          "10.0.0.2",
		paramExport:        "rw,sync",
	})
	require.NoError(t, err)

	assert.Equal(t, storage.KindNFS, info.Type)
	require.NotNil(t, info.NFS)
	assert.Equal(t, "10.0.0.2", info.NFS.Host)
	assert.Equal(t, "rw,sync", info.NFS.ExportSpec)
}

func TestParseStorageInfoMissingType(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{})
	assert.ErrorIs(t, err, errMissingType)
}

func TestParseStorageInfoUnknownType(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{paramType: "zfs-nvmeof"})
	assert.ErrorIs(t, err, errUnknownType)
}

func TestParseStorageInfoMissingParentDataset(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{paramType: typeZFSISCSI})
	assert.ErrorIs(t, err, errMissingParentDataset)
}

func TestParseStorageInfoISCSIMissingBaseIQN(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{
		paramType:          typeZFSISCSI,
		paramParentDataset: "tank/csi/",
		paramTargetPortal:  "10.0.0.1:3260",
	})
	assert.ErrorIs(t, err, errMissingBaseIQN)
}

func TestParseStorageInfoISCSIMissingTargetPortal(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{
		paramType:          typeZFSISCSI,
		paramParentDataset: "tank/csi/",
		paramBaseIQN:       "iqn.2020.org.ex:a",
	})
	assert.ErrorIs(t, err, errMissingTargetPortal)
}

func TestParseStorageInfoNFSMissingHost(t *testing.T) {
	_, err := parseStorageInfo(map[string]string{
		paramType:          typeZFSNFS,
		paramParentDataset: "tank/nfs/",
	})
	assert.ErrorIs(t, err, errMissingHost)
}

func TestVolumeNamePrefersPVCParameters(t *testing.T) {
	req := &csi.CreateVolumeRequest{
		Name: "pvc-abc123",
		Parameters: map[string]string{
			paramPVCName:      "pvc-2",
			paramPVCNamespace: "ns1",
		},
	}
	assert.Equal(t, "ns1/pvc-2", volumeName(req))
}

func TestVolumeNameFallsBackToRequestName(t *testing.T) {
	req := &csi.CreateVolumeRequest{Name: "pvc-abc123"}
	assert.Equal(t, "pvc-abc123", volumeName(req))
}

func TestProvisionedSizeDefault(t *testing.T) {
	assert.EqualValues(t, defaultVolumeSize, provisionedSize(nil))
}

func TestProvisionedSizeUsesMaxOfLimitAndRequired(t *testing.T) {
	cr := &csi.CapacityRange{RequiredBytes: 100, LimitBytes: 2147483648}
	assert.EqualValues(t, 2147483648, provisionedSize(cr))
}

func TestProvisionedSizeRequiredOnly(t *testing.T) {
	cr := &csi.CapacityRange{RequiredBytes: 2147483648}
	assert.EqualValues(t, 2147483648, provisionedSize(cr))
}

func TestProtocolLabel(t *testing.T) {
	assert.Equal(t, "iscsi", protocolLabel(storage.KindISCSI))
	assert.Equal(t, "nfs", protocolLabel(storage.KindNFS))
	assert.Equal(t, "unknown", protocolLabel(storage.Kind("other")))
}
