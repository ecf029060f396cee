package driver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/fenio/zed-csi/pkg/metadata"
	"github.com/fenio/zed-csi/pkg/metrics"
	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"
)

// Config contains the configuration for the driver.
type Config struct {
	DriverName   string
	Version      string
	NodeID       string
	Endpoint     string
	MetadataPath string
	NodeConfig   transport.Config
	MetricsAddr  string // Address to expose Prometheus metrics (e.g., ":8080")
}

// Driver is the zed-csi driver.
type Driver struct {
	srv        *grpc.Server
	metricsSrv *http.Server
	meta       *metadata.Store
	controller *ControllerService
	node       *NodeService
	identity   *IdentityService
	config     Config
}

// NewDriver creates a new driver instance, opening the metadata store at
// cfg.MetadataPath.
func NewDriver(cfg Config) (*Driver, error) {
	klog.V(4).Infof("Creating new driver with config: %+v", cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.MetadataPath), 0o750); err != nil {
		return nil, err
	}
	meta, err := metadata.Open(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		config: cfg,
		meta:   meta,
	}

	d.identity = NewIdentityService(cfg.DriverName, cfg.Version)
	d.controller = NewControllerService(meta, cfg.NodeConfig)
	d.node = NewNodeService(cfg.NodeID, meta, cfg.NodeConfig)

	return d, nil
}

// Run starts the gRPC server and, if configured, the metrics HTTP server,
// and blocks until either exits or the context is canceled.
func (d *Driver) Run(ctx context.Context) error {
	u, err := url.Parse(d.config.Endpoint)
	if err != nil {
		return err
	}

	var addr string
	if u.Scheme == "unix" {
		addr = u.Path
		if removeErr := os.Remove(addr); removeErr != nil && !os.IsNotExist(removeErr) {
			return removeErr
		}
		if mkdirErr := os.MkdirAll(filepath.Dir(addr), 0o750); mkdirErr != nil {
			return mkdirErr
		}
	} else {
		addr = u.Host
	}

	klog.Infof("Listening on %s://%s", u.Scheme, addr)
	//nolint:noctx // net.Listen is acceptable here - CSI driver lifecycle is managed by gRPC server
	listener, err := net.Listen(u.Scheme, addr)
	if err != nil {
		return err
	}

	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(d.metricsInterceptor),
	}
	d.srv = grpc.NewServer(opts...)

	csi.RegisterIdentityServer(d.srv, d.identity)
	csi.RegisterControllerServer(d.srv, d.controller)
	csi.RegisterNodeServer(d.srv, d.node)

	group, groupCtx := errgroup.WithContext(ctx)

	if d.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		d.metricsSrv = &http.Server{
			Addr:              d.config.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			klog.Infof("Starting metrics server on %s", d.config.MetricsAddr)
			if serveErr := d.metricsSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		})
	}

	group.Go(func() error {
		klog.Info("zed-csi driver is ready")
		if serveErr := d.srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		d.Stop()
		return nil
	})

	return group.Wait()
}

// Stop shuts down the metrics server and gRPC server, and closes the
// metadata store.
func (d *Driver) Stop() {
	klog.Info("Stopping zed-csi driver")

	if d.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			klog.Errorf("Error shutting down metrics server: %v", err)
		}
	}

	if d.srv != nil {
		d.srv.GracefulStop()
	}

	if d.meta != nil {
		if err := d.meta.Close(); err != nil {
			klog.Errorf("Error closing metadata store: %v", err)
		}
	}
}

// metricsInterceptor intercepts gRPC calls to record metrics and log requests.
func (d *Driver) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	methodParts := strings.Split(info.FullMethod, "/")
	method := methodParts[len(methodParts)-1]

	klog.V(3).Infof("GRPC call: %s", method)
	klog.V(5).Infof("GRPC request: %+v", req)

	timer := metrics.NewOperationTimer(method)

	resp, err := handler(ctx, req)

	if err != nil {
		klog.Errorf("GRPC error: %s returned error: %v", method, err)
		timer.ObserveError()
	} else {
		klog.V(5).Infof("GRPC response: %+v", resp)
		timer.ObserveSuccess()
	}

	return resp, err
}
