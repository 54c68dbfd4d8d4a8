package client

import (
	"fmt"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/dispatch"
	"github.com/kvlink/kvlink/core/pool"
	"github.com/kvlink/kvlink/core/router"
	"github.com/kvlink/kvlink/core/serializer"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// Client is the high-level entry point of kvlink.
type Client struct {
	conf       common.ClientConfig
	serializer serializer.ISerializer
	pool       *pool.Pool
	router     *router.Router
	dispatcher *dispatch.Dispatcher
}

// New creates a client with a uniform static topology derived from the
// configured endpoints: every endpoint is a primary owning an equal share
// of the slot space.
func New(conf common.ClientConfig, connector transport.IClientConnector, ser serializer.ISerializer) (*Client, error) {
	provider := router.NewUniformProvider(conf.Transport.Endpoints)
	return NewWithTopology(conf, connector, ser, provider)
}

// NewWithTopology creates a client routing over the given topology
// provider. The configured endpoints are pre-dialed; nodes only known to
// the topology are dialed lazily on first use.
func NewWithTopology(conf common.ClientConfig, connector transport.IClientConnector, ser serializer.ISerializer, provider router.ITopologyProvider) (*Client, error) {
	p := pool.New(connector, conf)
	if err := p.Connect(); err != nil {
		return nil, err
	}

	r := router.New(p, provider, nil, conf.ReplicaReads)

	return &Client{
		conf:       conf,
		serializer: ser,
		pool:       p,
		router:     r,
		dispatcher: dispatch.New(r, conf),
	}, nil
}

// --------------------------------------------------------------------------
// Asynchronous API
// --------------------------------------------------------------------------

// Dispatch submits a pre-encoded payload. This is the raw entry point the
// bridge package builds on: the payload is opaque, the notify callback (if
// any) fires exactly once on resolution.
func (c *Client) Dispatch(payload []byte, hint common.RouteHint, notify func(value []byte, err error)) (*dispatch.Handle, error) {
	return c.dispatcher.Submit(dispatch.Request{
		Payload: payload,
		Hint:    hint,
		Notify:  notify,
	})
}

// Do serializes the message and submits it, routed by the message key.
func (c *Client) Do(msg *common.Message) (*dispatch.Handle, error) {
	return c.DoRoute(msg, common.HintByKey(msg.Key))
}

// DoRoute serializes the message and submits it with an explicit hint.
func (c *Client) DoRoute(msg *common.Message, hint common.RouteHint) (*dispatch.Handle, error) {
	payload, err := c.serializer.Serialize(*msg)
	if err != nil {
		return nil, err
	}
	return c.dispatcher.Submit(dispatch.Request{Payload: payload, Hint: hint})
}

// --------------------------------------------------------------------------
// Blocking API
// --------------------------------------------------------------------------

// DoSync submits the message and blocks until its reply arrived, checking
// the reply for server-side errors and a matching request type.
func (c *Client) DoSync(msg *common.Message) (*common.Message, error) {
	return c.DoSyncRoute(msg, common.HintByKey(msg.Key))
}

// DoSyncRoute is DoSync with an explicit routing hint.
func (c *Client) DoSyncRoute(msg *common.Message, hint common.RouteHint) (*common.Message, error) {
	h, err := c.DoRoute(msg, hint)
	if err != nil {
		return nil, err
	}

	payload, err := h.Result()
	if err != nil {
		return nil, err
	}

	// Deserialize the reply
	reply := &common.Message{}
	if err := c.serializer.Deserialize(payload, reply); err != nil {
		return nil, common.WrapError(common.KindProtocol, "failed to decode reply", err)
	}

	// Check if the reply is an error reply
	if reply.Err != "" {
		return nil, fmt.Errorf("backend error: %s", reply.Err)
	}

	// Check if the type of the reply is the expected type
	if reply.ReqType != msg.ReqType {
		return nil, common.Errorf(common.KindProtocol, "unexpected reply type: %s, expected %s", reply.ReqType, msg.ReqType)
	}

	return reply, nil
}

// --------------------------------------------------------------------------
// Convenience methods for the built-in request types
// --------------------------------------------------------------------------

// Get returns the value of the key and whether it was found.
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	reply, err := c.DoSync(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return reply.Value, reply.Ok, nil
}

// Set stores the value under the key.
func (c *Client) Set(key string, value []byte) error {
	_, err := c.DoSync(common.NewSetRequest(key, value))
	return err
}

// Del removes the key, reporting whether it existed.
func (c *Client) Del(key string) (existed bool, err error) {
	reply, err := c.DoSync(common.NewDelRequest(key))
	if err != nil {
		return false, err
	}
	return reply.Ok, nil
}

// Has reports whether the key exists.
func (c *Client) Has(key string) (bool, error) {
	reply, err := c.DoSync(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return reply.Ok, nil
}

// Ping probes an arbitrary ready connection.
func (c *Client) Ping() error {
	_, err := c.DoSyncRoute(common.NewPingRequest(), common.RouteHint{})
	return err
}

// PingNode probes a specific node.
func (c *Client) PingNode(node string) error {
	_, err := c.DoSyncRoute(common.NewPingRequest(), common.HintToNode(node))
	return err
}

// --------------------------------------------------------------------------
// Introspection and teardown
// --------------------------------------------------------------------------

// Pool exposes the connection pool, mainly for diagnostics.
func (c *Client) Pool() *pool.Pool {
	return c.pool
}

// Router exposes the router, mainly for diagnostics.
func (c *Client) Router() *router.Router {
	return c.router
}

// Close tears down every connection. In-flight requests resolve with
// KindConnectionClosed.
func (c *Client) Close() error {
	return c.pool.Close()
}
