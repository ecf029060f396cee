package driver

import (
	"context"
	"fmt"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/metadata"
	"github.com/fenio/zed-csi/pkg/metrics"
	"github.com/fenio/zed-csi/pkg/storage"
	"github.com/fenio/zed-csi/pkg/transport"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// NodeService implements the CSI Node service.
type NodeService struct {
	csi.UnimplementedNodeServer
	nodeID  string
	meta    *metadata.Store
	nodeCfg transport.Config
}

// NewNodeService creates a new node service.
func NewNodeService(nodeID string, meta *metadata.Store, nodeCfg transport.Config) *NodeService {
	return &NodeService{nodeID: nodeID, meta: meta, nodeCfg: nodeCfg}
}

// NodeStageVolume logs the node into the iSCSI target, formats the device
// when it has no filesystem yet and mounts it at the staging path, or is a
// no-op for NFS (mounting happens in NodePublishVolume).
func (s *NodeService) NodeStageVolume(ctx context.Context, req *csi.NodeStageVolumeRequest) (*csi.NodeStageVolumeResponse, error) {
	klog.V(4).Infof("NodeStageVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "Staging target path is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "Volume capability is required")
	}

	info, err := s.resolveStorageInfo(req.GetVolumeId(), req.GetVolumeContext())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	timer := metrics.NewVolumeOperationTimer(protocolLabel(info.Type), "stage")

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

	if err := module.Stage(ctx, req.GetVolumeId(), req.GetStagingTargetPath()); err != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, err.Error())
	}

	timer.ObserveSuccess()
	return &csi.NodeStageVolumeResponse{}, nil
}

// NodeUnstageVolume unmounts the staging path and logs the node out of the
// iSCSI target (no-op for NFS, which has no session to tear down).
func (s *NodeService) NodeUnstageVolume(ctx context.Context, req *csi.NodeUnstageVolumeRequest) (*csi.NodeUnstageVolumeResponse, error) {
	klog.V(4).Infof("NodeUnstageVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "Staging target path is required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		klog.Warningf("NodeUnstageVolume: no metadata for %s, treating as already unstaged", req.GetVolumeId())
		return &csi.NodeUnstageVolumeResponse{}, nil
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

	if err := module.Unstage(ctx, req.GetVolumeId(), req.GetStagingTargetPath()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	return &csi.NodeUnstageVolumeResponse{}, nil
}

// NodePublishVolume bind-mounts the staging path onto the pod's target path
// for iSCSI, and mounts the NFS export "<host>:/<volumeID>" there directly
// for NFS.
func (s *NodeService) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	klog.V(4).Infof("NodePublishVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "Staging target path is required")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "Target path is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "Volume capability is required")
	}

	info, err := s.resolveStorageInfo(req.GetVolumeId(), req.GetVolumeContext())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	timer := metrics.NewVolumeOperationTimer(protocolLabel(info.Type), "publish")

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

	if err := module.Mount(ctx, req.GetVolumeId(), req.GetStagingTargetPath(), req.GetTargetPath()); err != nil {
		timer.ObserveError()
		return nil, status.Error(codes.Aborted, err.Error())
	}

	timer.ObserveSuccess()
	return &csi.NodePublishVolumeResponse{}, nil
}

// NodeUnpublishVolume unmounts the pod's target path.
func (s *NodeService) NodeUnpublishVolume(ctx context.Context, req *csi.NodeUnpublishVolumeRequest) (*csi.NodeUnpublishVolumeResponse, error) {
	klog.V(4).Infof("NodeUnpublishVolume called with request: %+v", req)

	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID is required")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "Target path is required")
	}

	info, ok := s.meta.Find(req.GetVolumeId())
	if !ok {
		klog.Warningf("NodeUnpublishVolume: no metadata for %s, treating as already unpublished", req.GetVolumeId())
		return &csi.NodeUnpublishVolumeResponse{}, nil
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

	if err := module.Unmount(ctx, req.GetVolumeId(), req.GetTargetPath()); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}

	return &csi.NodeUnpublishVolumeResponse{}, nil
}

// NodeGetCapabilities advertises STAGE_UNSTAGE_VOLUME only: get_volume_stats
// and expand_volume are unimplemented per spec.md §6.
func (s *NodeService) NodeGetCapabilities(_ context.Context, _ *csi.NodeGetCapabilitiesRequest) (*csi.NodeGetCapabilitiesResponse, error) {
	klog.V(4).Info("NodeGetCapabilities called")

	return &csi.NodeGetCapabilitiesResponse{
		Capabilities: []*csi.NodeServiceCapability{
			{
				Type: &csi.NodeServiceCapability_Rpc{
					Rpc: &csi.NodeServiceCapability_RPC{
						Type: csi.NodeServiceCapability_RPC_STAGE_UNSTAGE_VOLUME,
					},
				},
			},
		},
	}, nil
}

// NodeGetInfo returns the configured node ID, with no topology constraints.
func (s *NodeService) NodeGetInfo(_ context.Context, _ *csi.NodeGetInfoRequest) (*csi.NodeGetInfoResponse, error) {
	klog.V(4).Info("NodeGetInfo called")

	return &csi.NodeGetInfoResponse{
		NodeId: s.nodeID,
	}, nil
}

// resolveStorageInfo prefers parsing the full CSI volume_context, carried on
// stage/publish calls, over a metadata lookup, per spec.md §4.9's dispatch
// rule #1. It falls back to the metadata store when the context is empty or
// doesn't parse (CreateVolume returns no volume_context of its own, so the
// context holds create-time parameters only when the orchestrator forwards
// them).
func (s *NodeService) resolveStorageInfo(volumeID string, volumeContext map[string]string) (storage.StorageInfo, error) {
	if len(volumeContext) > 0 {
		if info, err := parseStorageInfo(volumeContext); err == nil {
			return info, nil
		}
	}

	info, ok := s.meta.Find(volumeID)
	if !ok {
		return storage.StorageInfo{}, fmt.Errorf("volume %s not found", volumeID)
	}
	return info, nil
}
