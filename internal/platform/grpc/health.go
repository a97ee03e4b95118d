// Package grpc runs the service's gRPC health endpoint and probes it.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves grpc.health.v1 for the overall server ("") and the
// named services.
type HealthServer struct {
	server   *gogrpc.Server
	health   *health.Server
	services []string
	serveErr chan error
}

// NewHealthServer builds a health server reporting SERVING once Serve runs.
func NewHealthServer(services ...string) *HealthServer {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	return &HealthServer{
		server:   server,
		health:   hs,
		services: append([]string{""}, services...),
		serveErr: make(chan error, 1),
	}
}

// Serve marks every service SERVING and serves on listener in the
// background.
func (s *HealthServer) Serve(listener net.Listener) {
	for _, name := range s.services {
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	go func() {
		s.serveErr <- s.server.Serve(listener)
	}()
}

// Stop reports NOT_SERVING, stops the server and waits for Serve to
// return.
func (s *HealthServer) Stop() error {
	s.health.Shutdown()
	s.server.GracefulStop()
	err := <-s.serveErr
	if errors.Is(err, gogrpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Probe connects to addr and waits until service reports SERVING or
// timeout passes.
func Probe(ctx context.Context, addr, service string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := gogrpc.NewClient(addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial health endpoint %s: %w", addr, err)
	}
	defer conn.Close()
	return WaitForHealth(ctx, conn, service, nil)
}

// WaitForHealth polls the health service with backoff until it reports
// SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	client := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("health check %q: %v", service, err)
			} else {
				logf("health check %q: %s", service, resp.GetStatus())
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for health %q: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
