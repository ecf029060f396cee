package driver

import (
	"context"
	"fmt"

	"github.com/fenio/zed-csi/pkg/metrics"
	"github.com/fenio/zed-csi/pkg/transport"
	"k8s.io/klog/v2"
)

// connectTransport builds a transport from the CSI request's secrets map
// when non-empty (controller-role calls always carry a transport
// description there), falling back to the process-wide node-control
// configuration otherwise (node-role calls driven by the local config
// file), then connects it. Per spec.md §9, the transport is owned for the
// lifetime of a single module call and disconnected by the caller.
func connectTransport(ctx context.Context, secrets map[string]string, nodeCfg transport.Config) (transport.Transport, transport.Config, error) {
	cfg := nodeCfg
	if len(secrets) > 0 {
		c, err := transport.FromSecrets(secrets)
		if err != nil {
			return nil, transport.Config{}, fmt.Errorf("transport: parsing secrets: %w", err)
		}
		cfg = c
	}

	tr := transport.New(cfg)
	if err := tr.Connect(ctx); err != nil {
		return nil, transport.Config{}, fmt.Errorf("transport: connect: %w", err)
	}
	metrics.IncTransportsActive(cfg.Kind.String())
	return tr, cfg, nil
}

// disconnectTransport tears down a transport obtained from connectTransport,
// logging but not propagating a disconnect failure — callers have already
// returned their RPC result by the time this runs via defer.
func disconnectTransport(tr transport.Transport, kind transport.Kind) {
	metrics.DecTransportsActive(kind.String())
	if err := tr.Disconnect(); err != nil {
		klog.Warningf("transport: disconnect: %v", err)
	}
}
