package simulator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/logging"
	"github.com/danmuck/trackerctl/internal/observability"
)

// ServerConfig configures the device listener.
type ServerConfig struct {
	// ListenAddr is the TCP address the instrument protocol is served on.
	ListenAddr string
	// ReadTimeout bounds client silence per read. Zero allows idle
	// connections, which is how the real instrument behaves between
	// commands.
	ReadTimeout time.Duration
	// WriteTimeout bounds each reply write.
	WriteTimeout time.Duration
}

// DefaultServerConfig listens on the instrument's stock port.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   ":50051",
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the instrument wire protocol over TCP. Like the real
// device it talks to one controller at a time: a new connection displaces
// the previous one.
type Server struct {
	cfg  ServerConfig
	ctrl *Controller
	log  zerolog.Logger

	mu     sync.Mutex
	ln     net.Listener
	active *deviceSession
}

// deviceSession is one accepted connection. writeMu interleaves command
// replies with timer-delivered plan completions.
type deviceSession struct {
	id   uuid.UUID
	conn net.Conn

	writeMu sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewServer(cfg ServerConfig, ctrl *Controller) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServerConfig().ListenAddr
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultServerConfig().WriteTimeout
	}
	return &Server{
		cfg:  cfg,
		ctrl: ctrl,
		log:  logging.Component("simulator"),
	}
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an existing listener until ctx is
// cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("device listener up")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeActive()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		sess := &deviceSession{id: uuid.New(), conn: conn}
		if prev := s.swapActive(sess); prev != nil {
			s.log.Warn().Stringer("session", prev.id).
				Str("remote", prev.conn.RemoteAddr().String()).
				Msg("device client displaced by new connection")
			prev.shutdown()
		}
		go s.handleConn(sess)
	}
}

// Addr reports the bound listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handleConn(sess *deviceSession) {
	remote := sess.conn.RemoteAddr().String()
	observability.RecordConnection()
	s.log.Info().Stringer("session", sess.id).Str("remote", remote).
		Msg("device client connected")
	defer func() {
		sess.shutdown()
		s.releaseActive(sess)
		s.log.Info().Stringer("session", sess.id).Str("remote", remote).
			Msg("device client disconnected")
	}()

	reader := bufio.NewReader(sess.conn)
	s.armPlanTimer(sess)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		raw, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		s.respond(sess, line)
		s.armPlanTimer(sess)
	}
}

// respond handles one line and writes its replies. The write mutex is
// held across both so replies hit the wire in the order the controller
// produced them, even against the plan timer.
func (s *Server) respond(sess *deviceSession, line string) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	start := time.Now()
	replies := s.ctrl.HandleLine(start, line)
	verb, _ := splitCommand(line)
	observability.RecordSimCommand(verb, commandOutcome(replies), time.Since(start))
	if isBusyReply(replies) {
		observability.RecordBusyRejection()
	}
	for _, reply := range replies {
		s.writeLocked(sess, reply)
	}
}

// armPlanTimer schedules delivery of the pending plan's completion reply.
// Any previously armed timer is replaced.
func (s *Server) armPlanTimer(sess *deviceSession) {
	due, ok := s.ctrl.NextDue()
	sess.timerMu.Lock()
	defer sess.timerMu.Unlock()
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	if !ok {
		return
	}
	wait := time.Until(due)
	if wait < 0 {
		wait = 0
	}
	sess.timer = time.AfterFunc(wait, func() {
		sess.writeMu.Lock()
		defer sess.writeMu.Unlock()
		for _, reply := range s.ctrl.DueReplies(time.Now()) {
			s.writeLocked(sess, reply)
		}
	})
}

// writeLocked writes one reply line. Callers hold sess.writeMu.
func (s *Server) writeLocked(sess *deviceSession, reply string) {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := sess.conn.Write([]byte(reply + "\r\n")); err != nil {
		s.log.Warn().Err(err).Stringer("session", sess.id).Msg("reply write failed")
		return
	}
	s.log.Debug().Stringer("session", sess.id).Str("reply", reply).Msg("reply sent")
}

func (s *Server) swapActive(sess *deviceSession) *deviceSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.active
	s.active = sess
	return prev
}

// releaseActive clears the active slot if sess still owns it. A displaced
// session finds someone else in the slot and leaves it alone.
func (s *Server) releaseActive(sess *deviceSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == sess {
		s.active = nil
	}
}

func (s *Server) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.shutdown()
		s.active = nil
	}
}

func (sess *deviceSession) shutdown() {
	sess.timerMu.Lock()
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.timerMu.Unlock()
	_ = sess.conn.Close()
}

func commandOutcome(replies []string) string {
	if len(replies) == 0 {
		return "deferred"
	}
	for _, reply := range replies {
		if strings.HasPrefix(reply, "ERR-") {
			return "rejected"
		}
	}
	return "ok"
}

func isBusyReply(replies []string) bool {
	for _, reply := range replies {
		if strings.HasPrefix(reply, "ERR-201") {
			return true
		}
	}
	return false
}
