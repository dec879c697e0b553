package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"benchml/internal/dataset"
	"benchml/internal/descriptor"
	"benchml/internal/matrix"
	"benchml/internal/transform"
)

func init() {
	descriptor.Register("remote", newRemote, nil)
}

// Client is a descriptor.Backend that evaluates on a remote server.
type Client struct {
	conn *grpc.ClientConn
	cfg  descriptor.Config
}

// Dial connects to a descriptor server. The connection is lazy; use Check
// to verify the server is reachable and serving.
func Dial(target string, cfg descriptor.Config, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

// Check asks the health service for the descriptor service status.
func (c *Client) Check(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("descriptor service is %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) Evaluate(ctx context.Context, s *dataset.Structure, centres [][3]float64) (*matrix.Dense, error) {
	req, err := encodeRequest(c.cfg, s, centres)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, evaluateMethod, req, out); err != nil {
		return nil, err
	}
	return decodeReply(out)
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var (
	connMu sync.Mutex
	conns  = map[string]*grpc.ClientConn{}
)

// shared returns one connection per address for the process.
func shared(addr string) (*grpc.ClientConn, error) {
	connMu.Lock()
	defer connMu.Unlock()
	if cc, ok := conns[addr]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	conns[addr] = cc
	return cc, nil
}

// CloseShared closes the connections opened by the remote backend.
func CloseShared() error {
	connMu.Lock()
	defer connMu.Unlock()
	var errs []error
	for addr, cc := range conns {
		errs = append(errs, cc.Close())
		delete(conns, addr)
	}
	return errors.Join(errs...)
}

// newRemote builds the "remote" backend. An unreachable or unhealthy server
// makes the backend unavailable at construction time.
func newRemote(cfg descriptor.Config) (descriptor.Backend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("remote backend needs an address: %w", descriptor.ErrBadConfig)
	}
	cc, err := shared(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", cfg.Address, transform.ErrUnavailable, err)
	}
	c := &Client{conn: cc, cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err := c.Check(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", cfg.Address, transform.ErrUnavailable, err)
	}
	return c, nil
}
