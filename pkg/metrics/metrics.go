// Package metrics provides Prometheus metrics for the zed-csi driver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "zed_csi"
)

// Operation types for CSI operations.
const (
	// Controller operations
	OpCreateVolume              = "CreateVolume"
	OpDeleteVolume              = "DeleteVolume"
	OpControllerPublish         = "ControllerPublishVolume"
	OpControllerUnpublish       = "ControllerUnpublishVolume"
	OpValidateCapabilities      = "ValidateVolumeCapabilities"
	OpControllerGetCapabilities = "ControllerGetCapabilities"

	// Node operations
	OpNodeStage           = "NodeStageVolume"
	OpNodeUnstage         = "NodeUnstageVolume"
	OpNodePublish         = "NodePublishVolume"
	OpNodeUnpublish       = "NodeUnpublishVolume"
	OpNodeGetCapabilities = "NodeGetCapabilities"
	OpNodeGetInfo         = "NodeGetInfo"

	// Identity operations
	OpGetPluginInfo         = "GetPluginInfo"
	OpGetPluginCapabilities = "GetPluginCapabilities"
	OpProbe                 = "Probe"
)

// Protocol types.
const (
	ProtocolISCSI   = "iscsi"
	ProtocolNFS     = "nfs"
	ProtocolUnknown = "unknown"
)

var (
	// CSI operation metrics
	csiOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of CSI operations by operation type and status",
		},
		[]string{"operation", "status"},
	)

	csiOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of CSI operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	// Volume operation metrics with protocol labels
	volumeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_operations_total",
			Help:      "Total number of volume operations by protocol, operation type and status",
		},
		[]string{"protocol", "operation", "status"},
	)

	volumeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "volume_operation_duration_seconds",
			Help:      "Duration of volume operations in seconds by protocol",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
		},
		[]string{"protocol", "operation"},
	)

	// transportsActive counts currently-connected shell transports (C1),
	// labeled by kind (local/chroot/ssh).
	transportsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transports_active",
			Help:      "Number of currently connected shell transports by kind",
		},
		[]string{"kind"},
	)

	// targetcliSessionsActive counts currently-open interactive targetcli
	// REPL sessions (C4/C2).
	targetcliSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targetcli_sessions_active",
			Help:      "Number of currently open interactive targetcli sessions",
		},
	)

	// Volume capacity metrics
	volumeCapacityBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume_capacity_bytes",
			Help:      "Volume capacity in bytes",
		},
		[]string{"volume_id", "protocol"},
	)
)

// RecordCSIOperation records the outcome of a CSI operation.
func RecordCSIOperation(operation, status string, duration time.Duration) {
	csiOperationsTotal.WithLabelValues(operation, status).Inc()
	csiOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVolumeOperation records the outcome of a volume operation with protocol.
func RecordVolumeOperation(protocol, operation, status string, duration time.Duration) {
	volumeOperationsTotal.WithLabelValues(protocol, operation, status).Inc()
	volumeOperationDuration.WithLabelValues(protocol, operation).Observe(duration.Seconds())
}

// IncTransportsActive records a newly connected transport of the given kind.
func IncTransportsActive(kind string) {
	transportsActive.WithLabelValues(kind).Inc()
}

// DecTransportsActive records a disconnected transport of the given kind.
func DecTransportsActive(kind string) {
	transportsActive.WithLabelValues(kind).Dec()
}

// IncTargetcliSessions records a newly opened targetcli REPL session.
func IncTargetcliSessions() {
	targetcliSessionsActive.Inc()
}

// DecTargetcliSessions records a closed targetcli REPL session.
func DecTargetcliSessions() {
	targetcliSessionsActive.Dec()
}

// SetVolumeCapacity sets the capacity of a volume.
func SetVolumeCapacity(volumeID, protocol string, bytes int64) {
	volumeCapacityBytes.WithLabelValues(volumeID, protocol).Set(float64(bytes))
}

// DeleteVolumeCapacity removes the capacity metric for a deleted volume.
func DeleteVolumeCapacity(volumeID, protocol string) {
	volumeCapacityBytes.DeleteLabelValues(volumeID, protocol)
}

// OperationTimer helps time operations and record metrics automatically.
type OperationTimer struct {
	start     time.Time
	operation string
	protocol  string // empty for non-volume operations
}

// NewOperationTimer creates a new timer for a CSI operation.
func NewOperationTimer(operation string) *OperationTimer {
	return &OperationTimer{
		start:     time.Now(),
		operation: operation,
	}
}

// NewVolumeOperationTimer creates a new timer for a volume operation with protocol.
func NewVolumeOperationTimer(protocol, operation string) *OperationTimer {
	return &OperationTimer{
		start:     time.Now(),
		operation: operation,
		protocol:  protocol,
	}
}

// ObserveSuccess records a successful operation.
func (t *OperationTimer) ObserveSuccess() {
	duration := time.Since(t.start)
	if t.protocol != "" {
		RecordVolumeOperation(t.protocol, t.operation, "success", duration)
	}
	RecordCSIOperation(t.operation, "success", duration)
}

// ObserveError records a failed operation.
func (t *OperationTimer) ObserveError() {
	duration := time.Since(t.start)
	if t.protocol != "" {
		RecordVolumeOperation(t.protocol, t.operation, "error", duration)
	}
	RecordCSIOperation(t.operation, "error", duration)
}
