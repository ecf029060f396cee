package driver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/metadata"
	"github.com/fenio/zed-csi/pkg/storage"
	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestControllerService(t *testing.T) *ControllerService {
	t.Helper()
	m, err := metadata.Open(filepath.Join(t.TempDir(), "volumes.json"))
	require.NoError(t, err)
	return NewControllerService(m, transport.Config{Kind: transport.Local})
}

func TestCreateVolumeRequiresName(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.CreateVolume(context.Background(), &csi.CreateVolumeRequest{
		VolumeCapabilities: []*csi.VolumeCapability{{}},
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestCreateVolumeRequiresCapabilities(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.CreateVolume(context.Background(), &csi.CreateVolumeRequest{Name: "pvc-1"})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestCreateVolumeRejectsBadParameters(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.CreateVolume(context.Background(), &csi.CreateVolumeRequest{
		Name:               "pvc-1",
		VolumeCapabilities: []*csi.VolumeCapability{{}},
		Parameters:         map[string]string{},
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestDeleteVolumeRequiresVolumeID(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.DeleteVolume(context.Background(), &csi.DeleteVolumeRequest{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestDeleteVolumeWithoutMetadataIsNoop(t *testing.T) {
	s := newTestControllerService(t)
	resp, err := s.DeleteVolume(context.Background(), &csi.DeleteVolumeRequest{VolumeId: "tank/csi/does-not-exist"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestControllerPublishVolumeRequiresFields(t *testing.T) {
	s := newTestControllerService(t)

	_, err := s.ControllerPublishVolume(context.Background(), &csi.ControllerPublishVolumeRequest{})
	st, _ := status.FromError(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())

	_, err = s.ControllerPublishVolume(context.Background(), &csi.ControllerPublishVolumeRequest{
		VolumeId: "v", NodeId: "n",
	})
	st, _ = status.FromError(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestControllerPublishVolumeNotFound(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.ControllerPublishVolume(context.Background(), &csi.ControllerPublishVolumeRequest{
		VolumeId:         "tank/csi/missing",
		NodeId:           "node-1",
		VolumeCapability: &csi.VolumeCapability{},
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestControllerUnpublishVolumeWithoutMetadataIsNoop(t *testing.T) {
	s := newTestControllerService(t)
	resp, err := s.ControllerUnpublishVolume(context.Background(), &csi.ControllerUnpublishVolumeRequest{VolumeId: "tank/csi/missing"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestValidateVolumeCapabilitiesISCSIBlockRejectsMultiNode(t *testing.T) {
	s := newTestControllerService(t)
	require.NoError(t, s.meta.Set(storage.KindISCSI, "tank/csi/pvc-1", storage.StorageInfo{
		Type:  storage.KindISCSI,
		ISCSI: &storage.ISCSIOptions{BaseIQN: "iqn.2020.org.ex:a", TargetPortal: "10.0.0.1:3260"},
		ZFS:   storage.ZFSOptions{ParentDataset: "tank/csi/"},
	}))

	resp, err := s.ValidateVolumeCapabilities(context.Background(), &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId: "tank/csi/pvc-1",
		VolumeCapabilities: []*csi.VolumeCapability{
			{
				AccessType: &csi.VolumeCapability_Block{Block: &csi.VolumeCapability_BlockVolume{}},
				AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER},
			},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.GetConfirmed())
	assert.NotEmpty(t, resp.GetMessage())
}

func TestValidateVolumeCapabilitiesNotFound(t *testing.T) {
	s := newTestControllerService(t)
	_, err := s.ValidateVolumeCapabilities(context.Background(), &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           "tank/csi/missing",
		VolumeCapabilities: []*csi.VolumeCapability{{}},
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestControllerGetCapabilities(t *testing.T) {
	s := newTestControllerService(t)
	resp, err := s.ControllerGetCapabilities(context.Background(), &csi.ControllerGetCapabilitiesRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.GetCapabilities(), 2)
}
