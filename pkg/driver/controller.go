// Package driver implements the CSI driver façade (C9): identity,
// controller and node gRPC services that dispatch to the per-backend
// storage modules (C7) over a transport built per call (C1).
package driver

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/metadata"
	"github.com/fenio/zed-csi/pkg/metrics"
	"github.com/fenio/zed-csi/pkg/storage"
	"github.com/fenio/zed-csi/pkg/transport"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// ControllerService implements the CSI Controller service.
type ControllerService struct {
	csi.UnimplementedControllerServer
	meta    *metadata.Store
	nodeCfg transport.Config
}

// NewControllerService creates a new controller service.
func NewControllerService(meta *metadata.Store, nodeCfg transport.Config) *ControllerService {
	return &ControllerService{meta: meta, nodeCfg: nodeCfg}
}

// CreateVolume creates a new volume's backing ZFS dataset.
func (s *ControllerService) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	klog.V(4).Infof("CreateVolume called with request: %+v", req)

	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume name is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "Volume capabilities are required")
	}

	info, err := parseStorageInfo(req.GetParameters())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	timer := metrics.NewVolumeOperationTimer(protocolLabel(info.Type), "create")

	tr, cfg, err := connectTransport(ctx, req.GetSecrets(), s.nodeCfg)
	if err != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, err.Error())
	}
	defer disconnectTransport(tr, cfg.Kind)

	module, err := storage.NewModule(info, tr)
	if err != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, err.Error())
	}

	name := volumeName(req)
	size := provisionedSize(req.GetCapacityRange())

	volumeID, err := module.Create(ctx, name, size)
	if err != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, err.Error())
	}

	if setErr := s.meta.Set(info.Type, volumeID, info); setErr != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, setErr.Error())
	}

	timer.ObserveSuccess()
	metrics.SetVolumeCapacity(volumeID, protocolLabel(info.Type), int64(size))

	return &csi.CreateVolumeResponse{
		Volume: &csi.Volume{
			VolumeId:      volumeID,
			CapacityBytes: int64(size),
		},
	}, nil
}

// DeleteVolume deletes a volume. The underlying ZFS dataset is never
// destroyed (spec.md §9's resolved open question: an intentional
// reclaim-policy decision, not a bug) and a volume_id with no matching
// metadata is treated as already deleted, per spec.md §7's local recovery
// policy.
func (s *ControllerService) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	klog.V(4).Infof("DeleteVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		klog.Warningf("DeleteVolume: no metadata for %s, treating as already deleted", req.GetVolumeId())
		return &csi.DeleteVolumeResponse{}, nil
	}

	tr, cfg, err := connectTransport(ctx, req.GetSecrets(), s.nodeCfg)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}
	defer disconnectTransport(tr, cfg.Kind)

	module, err := storage.NewModule(info, tr)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	if err := module.Delete(ctx, req.GetVolumeId()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	if err := s.meta.Delete(info.Type, req.GetVolumeId()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	metrics.DeleteVolumeCapacity(req.GetVolumeId(), protocolLabel(info.Type))
	return &csi.DeleteVolumeResponse{}, nil
}

// ControllerPublishVolume creates the iSCSI target/backstore for a volume
// (no-op for NFS, which has no controller-side publish step).
func (s *ControllerService) ControllerPublishVolume(ctx context.Context, req *csi.ControllerPublishVolumeRequest) (*csi.ControllerPublishVolumeResponse, error) {
	klog.V(4).Infof("ControllerPublishVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if req.GetNodeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Node ID is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "Volume capability is required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", req.GetVolumeId())
	}

	tr, cfg, err := connectTransport(ctx, req.GetSecrets(), s.nodeCfg)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}
	defer disconnectTransport(tr, cfg.Kind)

	module, err := storage.NewModule(info, tr)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	if err := module.Publish(ctx, req.GetVolumeId()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	return &csi.ControllerPublishVolumeResponse{}, nil
}

// ControllerUnpublishVolume is deliberately a no-op for iSCSI (spec.md §9:
// never clean up the target/backstore — safety over tidiness) and for NFS.
func (s *ControllerService) ControllerUnpublishVolume(ctx context.Context, req *csi.ControllerUnpublishVolumeRequest) (*csi.ControllerUnpublishVolumeResponse, error) {
	klog.V(4).Infof("ControllerUnpublishVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		klog.Warningf("ControllerUnpublishVolume: no metadata for %s, skipping", req.GetVolumeId())
		return &csi.ControllerUnpublishVolumeResponse{}, nil
	}

	tr, cfg, err := connectTransport(ctx, req.GetSecrets(), s.nodeCfg)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}
	defer disconnectTransport(tr, cfg.Kind)

	module, err := storage.NewModule(info, tr)
	if err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	if err := module.Unpublish(ctx, req.GetVolumeId()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	return &csi.ControllerUnpublishVolumeResponse{}, nil
}

// ValidateVolumeCapabilities checks the requested access mode against a
// fixed allow-list: SINGLE_NODE_WRITER only for iSCSI block volumes, any
// mode for NFS.
func (s *ControllerService) ValidateVolumeCapabilities(_ context.Context, req *csi.ValidateVolumeCapabilitiesRequest) (*csi.ValidateVolumeCapabilitiesResponse, error) {
	klog.V(4).Infof("ValidateVolumeCapabilities called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "Volume capabilities are required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", req.GetVolumeId())
	}

	for _, c := range req.GetVolumeCapabilities() {
		mode := c.GetAccessMode().GetMode()
		if info.Type == storage.KindISCSI && c.GetBlock() != nil &&
			mode != csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER {
			return &csi.ValidateVolumeCapabilitiesResponse{
				Message: "iSCSI block volumes only support SINGLE_NODE_WRITER",
			}, nil
		}
	}

	return &csi.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csi.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeCapabilities: req.GetVolumeCapabilities(),
		},
	}, nil
}

// ControllerGetCapabilities advertises the capabilities spec.md §6 declares:
// CREATE_DELETE_VOLUME and PUBLISH_UNPUBLISH_VOLUME only.
func (s *ControllerService) ControllerGetCapabilities(_ context.Context, _ *csi.ControllerGetCapabilitiesRequest) (*csi.ControllerGetCapabilitiesResponse, error) {
	klog.V(4).Info("ControllerGetCapabilities called")

	return &csi.ControllerGetCapabilitiesResponse{
		Capabilities: []*csi.ControllerServiceCapability{
			{
				Type: &csi.ControllerServiceCapability_Rpc{
					Rpc: &csi.ControllerServiceCapability_RPC{
						Type: csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
					},
				},
			},
			{
				Type: &csi.ControllerServiceCapability_Rpc{
					Rpc: &csi.ControllerServiceCapability_RPC{
						Type: csi.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME,
					},
				},
			},
		},
	}, nil
}
