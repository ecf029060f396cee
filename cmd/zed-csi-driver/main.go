// Package main implements the zed-csi driver entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fenio/zed-csi/pkg/config"
	"github.com/fenio/zed-csi/pkg/driver"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	logLevel    string
	configPath  string
	csiPath     string
	metadataDB  string
	nodeID      string
	csiName     string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:           "zed-csi-driver",
		Short:         "CSI driver backing volumes with ZFS datasets exported over iSCSI or NFS",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity: trace|debug|info|warn|error")
	root.Flags().StringVar(&configPath, "config", "/etc/zed-csi.yml", "path to the node control-mode configuration file")
	root.Flags().StringVar(&csiPath, "csi-path", "unix:///plugin/csi.sock", "CSI gRPC endpoint")
	root.Flags().StringVar(&metadataDB, "metadata-db", "/var/lib/zed-csi/volumes.json", "path to the volume metadata store")
	root.Flags().StringVar(&nodeID, "node-id", "", "node ID reported via NodeGetInfo")
	root.Flags().StringVar(&csiName, "csi-name", "zed.csi.fenio.io", "CSI driver name reported via GetPluginInfo")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":8080", "address to expose Prometheus metrics")

	if err := root.Execute(); err != nil {
		klog.Fatal(err)
	}
}

func run(_ *cobra.Command, _ []string) error {
	if err := setVerbosity(logLevel); err != nil {
		return err
	}

	if nodeID == "" {
		return fmt.Errorf("--node-id is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	nodeCfg, err := cfg.TransportConfig()
	if err != nil {
		return err
	}

	klog.Infof("Starting zed-csi driver %s (commit: %s)", version, gitCommit)
	klog.V(4).Infof("Driver: %s, node: %s, control mode: %s", csiName, nodeID, nodeCfg.Kind)

	drv, err := driver.NewDriver(driver.Config{
		DriverName:   csiName,
		Version:      version,
		NodeID:       nodeID,
		Endpoint:     csiPath,
		MetadataPath: metadataDB,
		NodeConfig:   nodeCfg,
		MetricsAddr:  metricsAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := drv.Run(ctx); err != nil {
		return fmt.Errorf("driver exited with error: %w", err)
	}
	return nil
}

// klogFlags registers klog's verbosity flag on its own FlagSet, once, so
// setVerbosity can drive klog.V() without cobra's flags and klog's flags
// colliding on the process-wide flag.CommandLine.
var klogFlags = func() *flag.FlagSet {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	return fs
}()

func setVerbosity(level string) error {
	var v string
	switch level {
	case "trace":
		v = "5"
	case "debug":
		v = "4"
	case "info":
		v = "2"
	case "warn", "error":
		v = "0"
	default:
		return fmt.Errorf("unknown --log-level %q", level)
	}

	return klogFlags.Set("v", v)
}
