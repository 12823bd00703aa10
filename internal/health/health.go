// Package health reports database reachability over HTTP and over the
// standard gRPC health protocol.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	DefaultInterval = 15 * time.Second
	pingTimeout     = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the database and mirrors the result into a gRPC health
// server. The empty service name covers the whole process.
type Checker struct {
	db  Pinger
	srv *health.Server
	log logrus.FieldLogger
	now func() time.Time

	mu      sync.Mutex
	serving bool
}

func NewChecker(db Pinger, log logrus.FieldLogger) *Checker {
	c := &Checker{db: db, srv: health.NewServer(), log: log, now: time.Now}
	c.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Server is the gRPC health implementation fed by Check.
func (c *Checker) Server() *health.Server { return c.srv }

// Check pings once and updates the gRPC status. Status changes are logged.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	err := c.db.Ping(ctx)

	c.mu.Lock()
	changed := c.serving != (err == nil)
	c.serving = err == nil
	c.mu.Unlock()

	if err != nil {
		c.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		if changed {
			c.log.WithError(err).Warn("database unreachable, health NOT_SERVING")
		}
		return err
	}
	c.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if changed {
		c.log.Info("database reachable, health SERVING")
	}
	return nil
}

// Run probes every interval until ctx is done, then marks the process as
// shutting down so clients stop routing to it.
func (c *Checker) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultInterval
	}
	_ = c.Check(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-t.C:
			_ = c.Check(ctx)
		}
	}
}

type report struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// ServeHTTP pings synchronously; 503 when the database does not answer.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "healthy", Database: "up", Timestamp: c.now().UTC()}
	code := http.StatusOK
	if err := c.Check(r.Context()); err != nil {
		rep.Status, rep.Database, rep.Error = "unhealthy", "down", "database ping failed"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
