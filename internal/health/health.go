// Package health drives the standard grpc.health.v1 service from dependency probes.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is one named dependency check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// PingProbe wraps a Pinger. A nil pinger (in-memory stores) always passes.
func PingProbe(name string, p Pinger) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return p.Ping(ctx)
	}}
}

// Checker runs probes and publishes the aggregate status for the given services
// ("" is the overall server status).
type Checker struct {
	server   *health.Server
	probes   []Probe
	services []string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewChecker returns a Checker that writes into srv.
func NewChecker(srv *health.Server, logger zerolog.Logger, services []string, probes ...Probe) *Checker {
	return &Checker{
		server:   srv,
		probes:   probes,
		services: append([]string{""}, services...),
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// Check runs every probe once and updates the serving status. Returns true when all passed.
func (c *Checker) Check(ctx context.Context) bool {
	ok := true
	for _, p := range c.probes {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			ok = false
			c.logger.Warn().Err(err).Str("probe", p.Name).Msg("health probe failed")
		}
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, s := range c.services {
		c.server.SetServingStatus(s, st)
	}
	return ok
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain before the listener closes.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}
