// Command healthclient watches the gRPC health status of a running
// snore-monitor service. The monitor service reports SERVING while a session
// is being recorded.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	service := flag.String("service", "smartsleep.SnoreMonitor", "Health service name (empty for the whole server)")
	once := flag.Bool("once", false, "Check once instead of watching")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)
	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := &grpc_health_v1.HealthCheckRequest{Service: *service}
	if *once {
		resp, err := client.Check(ctx, req)
		if err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		log.Printf("service=%q status=%s", *service, resp.GetStatus())
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			os.Exit(2)
		}
		return
	}

	stream, err := client.Watch(ctx, req)
	if err != nil {
		log.Fatalf("Failed to watch: %v", err)
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("Watch ended: %v", err)
		}
		log.Printf("service=%q status=%s", *service, resp.GetStatus())
	}
}
