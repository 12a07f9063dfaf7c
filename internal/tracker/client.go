package tracker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/logging"
	"github.com/danmuck/trackerctl/internal/protocol"
	"github.com/danmuck/trackerctl/internal/protocol/session"
)

var (
	ErrHostRequired     = errors.New("tracker: host required")
	ErrInvalidPort      = errors.New("tracker: port must be between 1 and 65535")
	ErrAlreadyConnected = errors.New("tracker: already connected")
	ErrNotConnected     = errors.New("tracker: not connected")
	ErrNotReady         = errors.New("tracker: instrument not ready")
)

// terminator ends every command and every reply on the wire.
const terminator = "\r\n"

// ClientConfig configures a Client.
type ClientConfig struct {
	Host string
	Port int

	// SimulationMode drives the instrument's internal simulation switch
	// right after connecting.
	SimulationMode bool

	// Elevation, Azimuth and CamRot seed the telescope position used in
	// frame names until SetTelescopePosition reports a live one.
	Elevation float64
	Azimuth   float64
	CamRot    float64

	Session session.Config
}

// DefaultClientConfig returns a config with the stowed telescope position
// and default session tuning. Host and Port must still be set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Elevation: 60,
		Session:   session.DefaultConfig(),
	}
}

// Client is a connection to the instrument's control port. All methods are
// safe for concurrent use; exchanges are serialized on one mutex so replies
// cannot be attributed to the wrong command.
type Client struct {
	cfg  ClientConfig
	addr string
	log  zerolog.Logger
	rng  *rand.Rand

	// mu serializes exchanges. Held across each write and the read of its
	// reply; measurement plans hold it for the full plan duration.
	mu sync.Mutex

	// stateMu guards the fields below so Connected and TargetName never
	// block behind an in-flight exchange. conn and reader are reassigned
	// only while both mu and stateMu are held.
	stateMu   sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	measIndex int
	elevation float64
	azimuth   float64
	camRot    float64
}

// NewClient validates cfg and returns an unconnected Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, ErrInvalidPort
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Client{
		cfg:       cfg,
		addr:      addr,
		log:       logging.Component("tracker").With().Str("addr", addr).Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		measIndex: 1,
		elevation: cfg.Elevation,
		azimuth:   cfg.Azimuth,
		camRot:    cfg.CamRot,
	}, nil
}

// Connect dials the instrument and sets its simulation switch per the
// config. The measurement index restarts at 1 for the new connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, _ := c.transport(); conn != nil {
		return ErrAlreadyConnected
	}
	dialer := net.Dialer{Timeout: c.cfg.Session.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("tracker: dial %s: %w", c.addr, err)
	}
	c.stateMu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected = true
	c.measIndex = 1
	c.stateMu.Unlock()
	c.log.Info().Bool("simulation", c.cfg.SimulationMode).Msg("connected")

	if _, err := c.exchangeLocked(ctx, protocol.CmdSetSimulation(c.cfg.SimulationMode)); err != nil {
		c.closeLocked()
		return fmt.Errorf("tracker: set simulation mode: %w", err)
	}
	return nil
}

// Disconnect resets the instrument's simulation switch best-effort and
// closes the connection. Calling it while disconnected is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, _ := c.transport(); conn == nil {
		return nil
	}
	if _, err := c.exchangeLocked(ctx, protocol.CmdSetSimulation(false)); err != nil {
		c.log.Warn().Err(err).Msg("reset simulation mode before disconnect")
	}
	c.closeLocked()
	return nil
}

// Connected reports whether the client holds a live connection. It turns
// false as soon as an exchange fails on the transport.
func (c *Client) Connected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected
}

// SendCommand performs one full exchange: write cmd, read its reply. Error
// replies come back as *protocol.DeviceError or *protocol.DeviceBusyError.
func (c *Client) SendCommand(ctx context.Context, cmd string) (protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchangeLocked(ctx, cmd)
}

// StartCommand writes cmd without waiting for its reply and without waiting
// for an in-flight exchange to finish. The reply must be collected with
// AwaitReply. The halt sequence uses this to reach an instrument that is
// still answering a measurement plan.
func (c *Client) StartCommand(ctx context.Context, cmd string) error {
	conn, _ := c.transport()
	if conn == nil {
		return ErrNotConnected
	}
	_ = conn.SetWriteDeadline(deadlineFor(ctx, c.cfg.Session.WriteTimeout))
	if _, err := conn.Write([]byte(cmd + terminator)); err != nil {
		return fmt.Errorf("tracker: write %s: %w", cmd, err)
	}
	c.log.Debug().Str("command", cmd).Msg("sent without awaiting reply")
	return nil
}

// AwaitReply reads the next reply line, which belongs to the oldest command
// whose reply has not been collected. cmd is only used for logs and errors.
func (c *Client) AwaitReply(ctx context.Context, cmd string) (protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, reader := c.transport()
	if conn == nil {
		return protocol.Reply{}, ErrNotConnected
	}
	return c.readReplyLocked(ctx, conn, reader, cmd, time.Now())
}

// Status reports the coarse instrument state. Busy rejections are consumed
// and reported as StatusBusy; every other error propagates.
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	reply, err := c.SendCommand(ctx, protocol.CmdStatus)
	if err != nil {
		if isBusyRejection(err) {
			return protocol.StatusBusy, nil
		}
		return protocol.StatusReady, err
	}
	return protocol.ParseStatus(reply.Body), nil
}

// exchangeLocked writes cmd and reads its reply. Caller must hold mu.
func (c *Client) exchangeLocked(ctx context.Context, cmd string) (protocol.Reply, error) {
	conn, reader := c.transport()
	if conn == nil {
		return protocol.Reply{}, ErrNotConnected
	}
	_ = conn.SetWriteDeadline(deadlineFor(ctx, c.cfg.Session.WriteTimeout))
	start := time.Now()
	if _, err := conn.Write([]byte(cmd + terminator)); err != nil {
		c.closeLocked()
		return protocol.Reply{}, fmt.Errorf("tracker: write %s: %w", cmd, err)
	}
	return c.readReplyLocked(ctx, conn, reader, cmd, start)
}

// readReplyLocked reads and classifies one reply line. A transport failure
// closes the connection; the caller must reconnect. Caller must hold mu.
func (c *Client) readReplyLocked(ctx context.Context, conn net.Conn, reader *bufio.Reader, cmd string, start time.Time) (protocol.Reply, error) {
	_ = conn.SetReadDeadline(deadlineFor(ctx, c.cfg.Session.ReadTimeout))
	line, err := reader.ReadString('\n')
	if err != nil {
		c.closeLocked()
		return protocol.Reply{}, fmt.Errorf("tracker: read reply to %s: %w", cmd, err)
	}
	elapsed := time.Since(start)
	line = strings.TrimRight(line, "\r\n")
	if thr := c.cfg.Session.SlowReplyThreshold; thr > 0 && elapsed > thr {
		c.log.Warn().Str("command", cmd).Str("reply", line).Dur("elapsed", elapsed).Msg("slow reply")
	} else {
		c.log.Debug().Str("command", cmd).Str("reply", line).Msg("reply")
	}
	reply, err := protocol.ParseReply(line)
	if err != nil {
		return protocol.Reply{}, err
	}
	if err := protocol.ReplyToError(reply); err != nil {
		return protocol.Reply{}, err
	}
	return reply, nil
}

// waitForReadyLocked polls status until the instrument accepts commands,
// pacing polls with the session backoff. Gives up after ReadyPollMax polls.
// Caller must hold mu.
func (c *Client) waitForReadyLocked(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		reply, err := c.exchangeLocked(ctx, protocol.CmdStatus)
		if err == nil && protocol.ParseStatus(reply.Body) == protocol.StatusReady {
			return nil
		}
		if err != nil && !isBusyRejection(err) {
			return err
		}
		if attempt >= c.cfg.Session.ReadyPollMax {
			return fmt.Errorf("%w after %d status polls", ErrNotReady, attempt)
		}
		delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
		c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("instrument busy")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// transport snapshots the current connection. The snapshot stays valid for
// the duration of an exchange because reassignment requires mu.
func (c *Client) transport() (net.Conn, *bufio.Reader) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.conn, c.reader
}

// closeLocked tears down the connection. Caller must hold mu.
func (c *Client) closeLocked() {
	c.stateMu.Lock()
	conn := c.conn
	c.conn = nil
	c.reader = nil
	c.connected = false
	c.stateMu.Unlock()
	if conn != nil {
		_ = conn.Close()
		c.log.Info().Msg("disconnected")
	}
}

// isBusyRejection reports whether err is a rejection meaning the instrument
// is momentarily unable to accept commands.
func isBusyRejection(err error) bool {
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) {
		return false
	}
	return devErr.Code == protocol.CodeCommandRejectedBusy ||
		devErr.Code == protocol.CodeInstrumentNotReady
}

// deadlineFor caps timeout by the context deadline, whichever comes first.
func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	dl := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(dl) {
		dl = d
	}
	return dl
}
