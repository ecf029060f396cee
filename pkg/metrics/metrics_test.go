package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsAvailability(t *testing.T) {
	RecordCSIOperation(OpCreateVolume, "success", 100*time.Millisecond)
	RecordVolumeOperation(ProtocolNFS, "create", "success", 200*time.Millisecond)
	IncTransportsActive("ssh")
	IncTargetcliSessions()
	SetVolumeCapacity("test-vol", ProtocolNFS, 1024*1024*1024)

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	content := string(body)

	expectedMetrics := []string{
		"zed_csi_operations_total",
		"zed_csi_operation_duration_seconds",
		"zed_csi_volume_operations_total",
		"zed_csi_volume_operation_duration_seconds",
		"zed_csi_transports_active",
		"zed_csi_targetcli_sessions_active",
		"zed_csi_volume_capacity_bytes",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(content, metric) {
			t.Errorf("Expected metric %s not found in metrics output", metric)
		}
	}

	DeleteVolumeCapacity("test-vol", ProtocolNFS)
	DecTransportsActive("ssh")
	DecTargetcliSessions()
}

func TestRecordCSIOperation(t *testing.T) {
	RecordCSIOperation(OpCreateVolume, "success", 100*time.Millisecond)
	RecordCSIOperation(OpDeleteVolume, "error", 50*time.Millisecond)
}

func TestRecordVolumeOperation(t *testing.T) {
	RecordVolumeOperation(ProtocolNFS, "create", "success", 200*time.Millisecond)
	RecordVolumeOperation(ProtocolISCSI, "create", "success", 300*time.Millisecond)
	RecordVolumeOperation(ProtocolNFS, "create", "error", 100*time.Millisecond)
}

func TestTransportAndTargetcliGauges(t *testing.T) {
	IncTransportsActive("local")
	DecTransportsActive("local")
	IncTargetcliSessions()
	DecTargetcliSessions()
}

func TestVolumeCapacityMetrics(t *testing.T) {
	SetVolumeCapacity("vol-123", ProtocolISCSI, 1024*1024*1024)
	SetVolumeCapacity("vol-123", ProtocolISCSI, 2*1024*1024*1024)
	DeleteVolumeCapacity("vol-123", ProtocolISCSI)
}

func TestOperationTimer(t *testing.T) {
	timer := NewOperationTimer(OpCreateVolume)
	time.Sleep(10 * time.Millisecond)
	timer.ObserveSuccess()

	timer2 := NewOperationTimer(OpDeleteVolume)
	time.Sleep(5 * time.Millisecond)
	timer2.ObserveError()

	volTimer := NewVolumeOperationTimer(ProtocolNFS, "create")
	time.Sleep(10 * time.Millisecond)
	volTimer.ObserveSuccess()

	volTimer2 := NewVolumeOperationTimer(ProtocolISCSI, "delete")
	time.Sleep(5 * time.Millisecond)
	volTimer2.ObserveError()
}

func TestMetricsConstants(t *testing.T) {
	if OpCreateVolume == "" {
		t.Error("OpCreateVolume should not be empty")
	}
	if ProtocolNFS == "" || ProtocolISCSI == "" {
		t.Error("Protocol constants should not be empty")
	}
}
