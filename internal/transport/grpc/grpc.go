// Package grpc implements the gRPC transport for yasna.
//
// The transport serves the standard grpc.health.v1.Health service, tracking
// the readiness of the conversation, plus server reflection so grpcurl and
// grpc_health_probe work without a proto file. The overall status ("") and
// the yasna.Conversation service both follow readiness.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/nadzzz/yasna/internal/health"
	"github.com/nadzzz/yasna/internal/transport"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name of the conversation.
const ServiceName = "yasna.Conversation"

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	ready  *health.Server
	server *grpc.Server
	health *grpchealth.Server
}

// New creates a new gRPC transport on the given port whose health status
// follows ready.
func New(port int, ready *health.Server) *Transport {
	return &Transport{port: port, ready: ready}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server. The controller is not used: the service
// surface is health only.
func (t *Transport) Listen(ctx context.Context, _ transport.Controller) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis)
}

// Serve runs the server on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	t.server = grpc.NewServer()
	t.health = grpchealth.NewServer()
	healthpb.RegisterHealthServer(t.server, t.health)
	reflection.Register(t.server)

	t.ready.Watch(func(ready bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready {
			status = healthpb.HealthCheckResponse_SERVING
		}
		t.health.SetServingStatus("", status)
		t.health.SetServingStatus(ServiceName, status)
	})

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
