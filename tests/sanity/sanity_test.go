// Package sanity starts a live instance of the driver and prepares a
// kubernetes-csi/csi-test sanity configuration for it; the suite itself is
// skipped (see TestSanityIdentity).
package sanity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenio/zed-csi/pkg/driver"
	"github.com/fenio/zed-csi/pkg/transport"
	sanity "github.com/kubernetes-csi/csi-test/v5/pkg/sanity"
)

const (
	driverName    = "zed.csi.fenio.io"
	driverVersion = "test"
	nodeID        = "test-node"
)

// TestSanityIdentity starts the driver on a temporary socket, waits for the
// socket to appear and builds the sanity configuration, then skips: no
// sanity check, Identity or otherwise, is run here.
func TestSanityIdentity(t *testing.T) {
	endpoint := "unix://" + filepath.Join(t.TempDir(), "csi.sock")
	tmpDir := t.TempDir()

	drv, err := driver.NewDriver(driver.Config{
		DriverName:   driverName,
		Version:      driverVersion,
		NodeID:       nodeID,
		Endpoint:     endpoint,
		MetadataPath: filepath.Join(tmpDir, "volumes.json"),
		NodeConfig:   transport.Config{Kind: transport.Local},
	})
	if err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- drv.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	waitForSocket(t, endpoint)

	cfg := sanity.NewTestConfig()
	cfg.Address = endpoint
	cfg.StagingPath = filepath.Join(tmpDir, "staging")
	cfg.TargetPath = filepath.Join(tmpDir, "target")
	if err := os.MkdirAll(cfg.StagingPath, 0o750); err != nil {
		t.Fatalf("failed to create staging path: %v", err)
	}
	if err := os.MkdirAll(cfg.TargetPath, 0o750); err != nil {
		t.Fatalf("failed to create target path: %v", err)
	}

	// The generic CSI sanity suite exercises Controller/Node RPCs alongside
	// Identity ones, and those shell out to zfs/targetcli/iscsiadm/mount —
	// tooling this environment doesn't provide. Running the whole suite
	// here isn't possible without those binaries on PATH; a host with them
	// installed (e.g. a VM-backed CI runner) can drop this skip and run
	// sanity.Test(t, cfg) directly against the same driver instance.
	t.Skip("full suite needs zfs/targetcli/iscsiadm/mount on PATH; Identity-only coverage is in pkg/driver/identity_test.go")
}

func waitForSocket(t *testing.T, endpoint string) {
	t.Helper()
	path := endpoint[len("unix://"):]
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for socket %s", path)
}
