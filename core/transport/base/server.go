package base

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
)

// --------------------------------------------------------------------------
// Stub node server
// --------------------------------------------------------------------------

// Server is a frame-speaking backend node used for tests, benchmarks and
// local development. It reads request frames, hands the payload to the
// registered handler and writes the response back under the same
// correlation ID. Responses may interleave freely across requests of one
// connection since every request is processed by its own worker.
type Server struct {
	connector         transport.IServerConnector
	handler           transport.ServerHandleFunc
	config            common.ServerConfig
	listener          net.Listener
	listenerMu        sync.Mutex
	bufferPool        *sync.Pool
	bufferSize        int
	maxWorkersPerConn int
}

// NewServer creates a new stub node server with a per-connection worker pool
func NewServer(connector transport.IServerConnector, bufferSize int, maxWorkersPerConn int) *Server {
	// minimum one worker per connection
	maxWorkersPerConn = int(math.Max(float64(maxWorkersPerConn), 1))

	return &Server{
		connector:         connector,
		bufferSize:        bufferSize,
		maxWorkersPerConn: maxWorkersPerConn,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, frameHeaderSize)
			},
		},
	}
}

// RegisterHandler registers the handler called for every request frame
func (t *Server) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

// Listen starts accepting connections. It blocks until Close is called or
// the listener fails.
func (t *Server) Listen(config common.ServerConfig) error {
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listenerMu.Lock()
	t.listener = listener
	t.listenerMu.Unlock()

	Logger.Infof("Starting %s stub node on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), t.maxWorkersPerConn)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

// Addr returns the listener address, or nil before Listen bound it.
func (t *Server) Addr() net.Addr {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Close stops the accept loop.
func (t *Server) Close() error {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming requests for one connection
func (t *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(corrID uint64, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		// Process the request
		start := time.Now()
		resp := t.handler(data)
		Logger.Debugf("Processed request with correlation ID %d in %s", corrID, time.Since(start))

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same correlation ID
		if err := writeFrame(conn, corrID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a header buffer from the pool
		header := t.bufferPool.Get().([]byte)
		defer t.bufferPool.Put(header)

		// Read the frame
		corrID, data, err := readFrame(conn, header)
		if err != nil {
			return err
		}

		// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)

		// Process in a goroutine
		go handleResponse(corrID, data)

		return nil
	}

	// Handle requests in a loop
	for {
		// Handle request
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Infof("Connection closed by client")
			break
		}

		// Case error: log and close connection
		if err != nil {
			Logger.Errorf("Error handling request: %v", err)
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	// This ensures we don't lose any in-progress work
	wg.Wait()
}
