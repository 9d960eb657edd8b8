package erp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
)

// Odoo-style XML-RPC endpoints.
const (
	serviceCommon = "common"
	serviceObject = "object"
	serviceDB     = "db"
)

// caller abstracts the RPC transport so the gateway logic can be tested
// against a stub.
type caller interface {
	Call(ctx context.Context, service, method string, args []any, reply any) error
}

// xmlrpcCaller lazily builds one xmlrpc client per service endpoint
// (/xmlrpc/2/common, /xmlrpc/2/object, /xmlrpc/2/db) and dispatches calls
// through it.
type xmlrpcCaller struct {
	baseURL string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*xmlrpc.Client
}

func newXMLRPCCaller(baseURL string, timeout time.Duration) *xmlrpcCaller {
	return &xmlrpcCaller{
		baseURL: baseURL,
		timeout: timeout,
		clients: make(map[string]*xmlrpc.Client),
	}
}

func (c *xmlrpcCaller) client(service string) (*xmlrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[service]; ok {
		return client, nil
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: c.timeout}).DialContext,
		ResponseHeaderTimeout: c.timeout,
	}

	client, err := xmlrpc.NewClient(c.baseURL+"/xmlrpc/2/"+service, transport)
	if err != nil {
		return nil, fmt.Errorf("build xmlrpc client for %s: %w", service, err)
	}

	c.clients[service] = client
	return client, nil
}

// Call issues the RPC, honoring context cancellation. The underlying client
// has no context support, so cancellation abandons the in-flight call and the
// transport's own timeouts bound how long it lingers.
func (c *xmlrpcCaller) Call(ctx context.Context, service, method string, args []any, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := c.client(service)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, reply)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
