package keba

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is the wallbox command link. Send performs a full round-trip with
// retry; SendFireAndForget writes without waiting for a reply. Unsolicited
// broadcasts are delivered to the handler registered before Open.
type Client interface {
	Open() error
	Close() error
	Send(command string) (Response, error)
	SendFireAndForget(command string) error
	SetBroadcastHandler(fn func(Broadcast))
}

// UDPClient talks the plain-text line protocol over UDP. The device answers
// requests on the same socket it receives them on and pushes broadcasts to
// the same local port, so a single socket carries both kinds of traffic.
// Replies are correlated to requests by the single-outstanding-request
// discipline: while a request is pending, the next datagram from the device
// is its reply; everything else is a broadcast.
type UDPClient struct {
	host            string
	port            int
	responseTimeout time.Duration
	retry           RetryConfig
	logger          *zap.Logger

	conn       *net.UDPConn
	remoteAddr *net.UDPAddr

	sendMu sync.Mutex // one outstanding request per socket

	mu          sync.Mutex
	pending     chan string
	broadcastFn func(Broadcast)
	closing     chan struct{}
	done        chan struct{}
}

// NewUDPClient creates a client for the wallbox at host. A zero
// responseTimeout defaults to 1500ms.
func NewUDPClient(host string, port int, responseTimeout time.Duration, retry RetryConfig, logger *zap.Logger) *UDPClient {
	if port <= 0 {
		port = DefaultPort
	}
	if responseTimeout <= 0 {
		responseTimeout = 1500 * time.Millisecond
	}
	return &UDPClient{
		host:            host,
		port:            port,
		responseTimeout: responseTimeout,
		retry:           retry,
		logger:          logger.With(zap.String("device", host)),
	}
}

func (c *UDPClient) SetBroadcastHandler(fn func(Broadcast)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastFn = fn
}

func (c *UDPClient) Open() error {
	remote, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return err
	}
	// the wallbox addresses its replies and broadcasts to source port 7090
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: c.port})
	if err != nil {
		return err
	}
	c.remoteAddr = remote
	c.conn = conn
	c.closing = make(chan struct{})
	c.done = make(chan struct{})
	go c.readLoop()
	return nil
}

func (c *UDPClient) Close() error {
	c.mu.Lock()
	if c.closing != nil {
		close(c.closing)
		c.closing = nil
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-c.done
	return err
}

// Send writes the command and waits for the reply, retrying on timeout per
// the retry config. The decoded reply is validated against the command; a
// validation failure is returned alongside the reply and is not retried.
func (c *UDPClient) Send(command string) (Response, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	raw, err := RetryWithBackoff(c.retry, func() (string, error) {
		return c.roundTrip(command)
	})
	if err != nil {
		if IsTimeout(err) {
			return nil, &TimeoutError{Command: command, Attempts: c.retry.MaxAttempts}
		}
		return nil, err
	}
	resp := ParseResponse(raw)
	if err := ValidateResponse(command, resp); err != nil {
		c.logger.Warn("response validation failed", zap.String("command", command), zap.Error(err))
		return resp, err
	}
	return resp, nil
}

// SendFireAndForget writes the command without waiting for a reply. The
// reply datagram, if any, is discarded by the read loop as a broadcast.
func (c *UDPClient) SendFireAndForget(command string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.write(command)
}

func (c *UDPClient) roundTrip(command string) (string, error) {
	resp := make(chan string, 1)
	c.mu.Lock()
	c.pending = resp
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	if err := c.write(command); err != nil {
		return "", err
	}

	select {
	case raw := <-resp:
		return raw, nil
	case <-time.After(c.responseTimeout):
		return "", &TimeoutError{Command: command, Attempts: 1}
	}
}

func (c *UDPClient) write(command string) error {
	_, err := c.conn.WriteToUDP([]byte(command), c.remoteAddr)
	return err
}

func (c *UDPClient) readLoop() {
	defer close(c.done)
	buf := make([]byte, 2048)
	for {
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			c.mu.Lock()
			closed := c.closing == nil
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Debug("udp read error", zap.Error(err))
			continue
		}
		if !addr.IP.Equal(c.remoteAddr.IP) {
			continue
		}
		data := string(buf[:n])

		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		broadcastFn := c.broadcastFn
		c.mu.Unlock()

		if pending != nil {
			pending <- data
			continue
		}
		// no request in flight: unsolicited broadcast
		bc, err := ParseBroadcast(data)
		if err != nil {
			// a malformed broadcast must never take the link down
			c.logger.Debug("discarding malformed broadcast", zap.String("data", data), zap.Error(err))
			continue
		}
		if broadcastFn != nil {
			broadcastFn(bc)
		}
	}
}
