package stubnode

import (
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/serializer"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/kvlink/kvlink/core/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("stubnode")

// Node is a stub backend: a frame server over an in-memory key space.
type Node struct {
	server     *base.Server
	serializer serializer.ISerializer
	data       *xsync.MapOf[string, []byte]
}

// New creates a stub node using the given connectors and serializer.
func New(connector transport.IServerConnector, ser serializer.ISerializer, conf common.ServerConfig) *Node {
	bufferSize := conf.BufferSize
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	workers := conf.MaxWorkersPerConn
	if workers <= 0 {
		workers = 16
	}

	n := &Node{
		server:     base.NewServer(connector, bufferSize, workers),
		serializer: ser,
		data:       xsync.NewMapOf[string, []byte](),
	}
	n.server.RegisterHandler(n.handle)
	return n
}

// Server exposes the underlying frame server (Listen, Addr, Close).
func (n *Node) Server() *base.Server {
	return n.server
}

// Listen starts serving. It blocks until the server is closed.
func (n *Node) Listen(conf common.ServerConfig) error {
	return n.server.Listen(conf)
}

// Close stops the node.
func (n *Node) Close() error {
	return n.server.Close()
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

// handle decodes a request payload, applies it to the key space and encodes
// the reply. Undecodable payloads are answered with an error reply rather
// than dropped, so the client's correlation entry always resolves.
func (n *Node) handle(req []byte) []byte {
	var msg common.Message
	if err := n.serializer.Deserialize(req, &msg); err != nil {
		Logger.Warningf("Failed to decode request: %v", err)
		return n.encode(common.NewErrorReply(common.ReqUnknown, "undecodable request"))
	}

	switch msg.ReqType {
	case common.ReqGet:
		value, ok := n.data.Load(msg.Key)
		return n.encode(common.NewValueReply(common.ReqGet, value, ok))

	case common.ReqSet:
		if len(msg.Args) != 1 {
			return n.encode(common.NewErrorReply(common.ReqSet, "set requires exactly one value argument"))
		}
		n.data.Store(msg.Key, msg.Args[0])
		return n.encode(common.NewOkReply(common.ReqSet, true))

	case common.ReqDel:
		_, existed := n.data.LoadAndDelete(msg.Key)
		return n.encode(common.NewOkReply(common.ReqDel, existed))

	case common.ReqHas:
		_, ok := n.data.Load(msg.Key)
		return n.encode(common.NewOkReply(common.ReqHas, ok))

	case common.ReqPing:
		return n.encode(common.NewValueReply(common.ReqPing, []byte("pong"), true))

	case common.ReqCustom:
		// Echo the argument vector back, concatenated. Enough to test
		// opaque round trips.
		var value []byte
		for _, arg := range msg.Args {
			value = append(value, arg...)
		}
		return n.encode(common.NewValueReply(common.ReqCustom, value, true))

	default:
		return n.encode(common.NewErrorReply(msg.ReqType, "unsupported request type"))
	}
}

// encode serializes a reply; encoding a reply must not fail, so a failure
// here is a bug and panics loudly in the stub.
func (n *Node) encode(msg *common.Message) []byte {
	data, err := n.serializer.Serialize(*msg)
	if err != nil {
		Logger.Panicf("Failed to encode reply: %v", err)
	}
	return data
}
