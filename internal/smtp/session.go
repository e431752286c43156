package smtp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/smtp2webhook/internal/email"
	"github.com/shineum/smtp2webhook/internal/logging"
	"github.com/shineum/smtp2webhook/internal/metrics"
	"github.com/shineum/smtp2webhook/internal/parser"
)

// Session states for the SMTP state machine.
type sessionState int

const (
	stateCommand sessionState = iota
	stateData
	stateAuthUsername
	stateAuthResponse
)

func (st sessionState) String() string {
	switch st {
	case stateCommand:
		return "command"
	case stateData:
		return "data"
	case stateAuthUsername:
		return "auth_username"
	case stateAuthResponse:
		return "auth_response"
	default:
		return "unknown"
	}
}

// Defaults applied by SessionConfig when a limit is left at zero.
const (
	DefaultHostname       = "localhost"
	DefaultMaxLineLength  = 10000
	DefaultMaxMessageSize = 50 * 1024 * 1024
	DefaultIdleTimeout    = 300 * time.Second
)

// Reply texts.
const (
	replyOK           = "250 OK"
	replyAccepted     = "250 OK: Message accepted"
	replyStartData    = "354 Start mail input; end with <CRLF>.<CRLF>"
	replyBye          = "221 Bye"
	replyAuthOK       = "235 Authentication successful"
	replyUnknown      = "500 Command not recognized"
	replyLineTooLong  = "500 Line too long"
	replyMessageLarge = "552 Message size exceeds limit"
)

// Publisher hands a parsed email to the delivery pipeline. It must not block.
type Publisher interface {
	Publish(msg *email.Email) bool
}

// SessionConfig holds everything a Session needs besides its connection.
type SessionConfig struct {
	// Hostname is announced in the greeting and HELO/EHLO replies.
	Hostname string

	// MaxLineLength is the longest accepted line in bytes, terminator included.
	MaxLineLength int

	// MaxMessageSize caps the DATA buffer in bytes.
	MaxMessageSize int64

	// IdleTimeout closes a connection that sends nothing for this long.
	// Negative disables the deadline.
	IdleTimeout time.Duration

	Parser    parser.Parser
	Publisher Publisher
	Metrics   metrics.Collector
	Logger    *slog.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Hostname == "" {
		c.Hostname = DefaultHostname
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Parser == nil {
		c.Parser = parser.MIME{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoopCollector{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// outcome is the result of feeding one line to the state machine.
type outcome struct {
	replies []string
	close   bool
}

func respond(replies ...string) outcome {
	return outcome{replies: replies}
}

// Session represents a single SMTP client connection. All of its state is
// owned by the goroutine running Handle.
type Session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cfg    SessionConfig
	logger *slog.Logger

	state    sessionState
	envelope email.Envelope
	data     bytes.Buffer
	auth     authAttempt
}

// NewSession creates a new SMTP session for the given connection.
func NewSession(conn net.Conn, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	id := uuid.NewString()

	return &Session{
		id:     id,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cfg:    cfg,
		logger: logging.WithSession(cfg.Logger, id, conn.RemoteAddr().String()),
		state:  stateCommand,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Handle runs the SMTP session until the client quits, disconnects, goes
// idle or an I/O error occurs. The connection is always closed on return.
func (s *Session) Handle() {
	defer s.conn.Close()

	s.cfg.Metrics.ConnectionOpened()
	defer s.cfg.Metrics.ConnectionClosed()

	s.logger.Info("connection opened")
	defer s.logger.Info("connection closed")

	if err := s.send(fmt.Sprintf("220 %s SMTP Ready", s.cfg.Hostname)); err != nil {
		s.logger.Warn("failed to send greeting", "error", err)
		return
	}

	for {
		if s.cfg.IdleTimeout > 0 {
			if err := s.conn.SetDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				s.logger.Error("failed to set connection deadline", "error", err)
				return
			}
		}

		line, tooLong, err := s.readLine()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Debug("client disconnected")
			case errors.As(err, &netErr) && netErr.Timeout():
				s.logger.Info("idle timeout reached")
			default:
				s.logger.Warn("connection read error", "error", err)
			}
			return
		}

		out := s.step(line, tooLong)
		if err := s.send(out.replies...); err != nil {
			s.logger.Warn("failed to write reply", "error", err)
			return
		}
		if out.close {
			return
		}
	}
}

// readLine returns the next line including its terminator. A line longer
// than MaxLineLength is consumed and discarded and reported as tooLong, so
// no more than MaxLineLength bytes of a line are ever held. A final line
// without a terminator is returned before io.EOF.
func (s *Session) readLine() (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		frag, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(frag) > s.cfg.MaxLineLength {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}

		switch {
		case err == nil:
			return string(buf), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong):
			return string(buf), tooLong, nil
		default:
			return "", false, err
		}
	}
}

// step advances the state machine by one line and returns the replies to
// send. It performs no network I/O.
func (s *Session) step(line string, tooLong bool) outcome {
	switch s.state {
	case stateData:
		return s.stepData(line, tooLong)
	case stateAuthUsername:
		s.auth.username = decodeLoginField(line)
		s.state = stateAuthResponse
		return respond(promptPassword)
	case stateAuthResponse:
		s.state = stateCommand
		s.logAuth()
		return respond(replyAuthOK)
	default:
		return s.stepCommand(line, tooLong)
	}
}

func (s *Session) stepCommand(line string, tooLong bool) outcome {
	if tooLong {
		s.logger.Warn("command line too long", "limit", s.cfg.MaxLineLength)
		s.cfg.Metrics.CommandProcessed("UNKNOWN")
		return respond(replyLineTooLong)
	}

	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return outcome{}
	}
	upper := strings.ToUpper(cmd)
	s.cfg.Metrics.CommandProcessed(commandVerb(upper))

	switch {
	case strings.HasPrefix(upper, "HELO"):
		return respond(fmt.Sprintf("250 %s Hello", s.cfg.Hostname))
	case strings.HasPrefix(upper, "EHLO"):
		return respond(
			fmt.Sprintf("250-%s Hello", s.cfg.Hostname),
			"250-AUTH PLAIN LOGIN",
			fmt.Sprintf("250 SIZE %d", s.cfg.MaxMessageSize),
		)
	case strings.HasPrefix(upper, "MAIL FROM:"):
		s.envelope.From = ExtractAddress(cmd)
		s.logger.Debug("sender set", "from", s.envelope.From)
		return respond(replyOK)
	case strings.HasPrefix(upper, "RCPT TO:"):
		rcpt := ExtractAddress(cmd)
		s.envelope.To = append(s.envelope.To, rcpt)
		s.logger.Debug("recipient added", "to", rcpt)
		return respond(replyOK)
	case strings.HasPrefix(upper, "DATA"):
		s.data.Reset()
		s.state = stateData
		return respond(replyStartData)
	case strings.HasPrefix(upper, "RSET"):
		s.resetTransaction()
		return respond(replyOK)
	case strings.HasPrefix(upper, "NOOP"):
		return respond(replyOK)
	case strings.HasPrefix(upper, "QUIT"):
		return outcome{replies: []string{replyBye}, close: true}
	case strings.HasPrefix(upper, "AUTH"):
		return s.startAuth(cmd)
	default:
		s.logger.Debug("unrecognized command", "command", cmd)
		return respond(replyUnknown)
	}
}

func (s *Session) stepData(line string, tooLong bool) outcome {
	if tooLong {
		s.logger.Warn("line too long, discarding message", "limit", s.cfg.MaxLineLength)
		s.cfg.Metrics.MessageRejected(metrics.ReasonLineTooLong)
		s.abortData()
		return respond(replyLineTooLong)
	}

	if strings.TrimSpace(line) == "." {
		return respond(s.finishData())
	}

	if int64(s.data.Len()+len(line)) > s.cfg.MaxMessageSize {
		s.logger.Warn("message too large, discarding", "limit", s.cfg.MaxMessageSize)
		s.cfg.Metrics.MessageRejected(metrics.ReasonTooBig)
		s.abortData()
		return respond(replyMessageLarge)
	}

	// Lines are kept verbatim, terminator included.
	s.data.WriteString(line)
	return outcome{}
}

// finishData parses the buffered message and hands it to the publisher.
// The client is told the message was accepted either way.
func (s *Session) finishData() string {
	env := s.envelope
	if env.From == "" {
		env.From = unknownAddress
	}
	size := int64(s.data.Len())

	msg, err := s.cfg.Parser.Parse(env, s.data.Bytes())
	switch {
	case err != nil:
		s.logger.Warn("failed to parse message, not forwarding",
			"error", err,
			"parser", s.cfg.Parser.Name(),
			"size", size,
		)
		s.cfg.Metrics.MessageRejected(metrics.ReasonParseFailed)
	case s.cfg.Publisher == nil:
		s.logger.Warn("no publisher configured, dropping message", "subject", msg.Subject)
	case s.cfg.Publisher.Publish(msg):
		s.cfg.Metrics.MessageAccepted(size)
		s.logger.Info("message accepted",
			"from", msg.From,
			"recipients", len(msg.To),
			"subject", msg.Subject,
			"size", size,
		)
	}

	s.abortData()
	return replyAccepted
}

func (s *Session) startAuth(cmd string) outcome {
	fields := strings.Fields(cmd)
	s.auth = authAttempt{}
	if len(fields) > 1 {
		s.auth.mechanism = strings.ToUpper(fields[1])
	}

	switch s.auth.mechanism {
	case "LOGIN":
		if len(fields) > 2 {
			s.auth.username = decodeLoginField(fields[2])
			s.state = stateAuthResponse
			return respond(promptPassword)
		}
		s.state = stateAuthUsername
		return respond(promptUsername)
	case "PLAIN":
		if len(fields) <= 2 {
			s.state = stateAuthResponse
			return respond("334 ")
		}
		s.auth.username = decodePlainUsername(fields[2])
	}

	s.logAuth()
	return respond(replyAuthOK)
}

func (s *Session) logAuth() {
	s.logger.Info("AUTH accepted without verification",
		"mechanism", s.auth.mechanism,
		"username", s.auth.username,
	)
}

// resetTransaction clears the envelope and DATA buffer.
func (s *Session) resetTransaction() {
	s.envelope.Reset()
	s.data.Reset()
}

// abortData ends a DATA phase and returns to command mode with an empty
// transaction.
func (s *Session) abortData() {
	s.resetTransaction()
	s.state = stateCommand
}

// send writes each reply followed by CRLF and flushes.
func (s *Session) send(replies ...string) error {
	if len(replies) == 0 {
		return nil
	}
	for _, r := range replies {
		if _, err := s.writer.WriteString(r + "\r\n"); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

// commandVerb maps a command line to a bounded metric label.
func commandVerb(upper string) string {
	for _, verb := range []string{"HELO", "EHLO", "MAIL", "RCPT", "DATA", "RSET", "NOOP", "QUIT", "AUTH"} {
		if strings.HasPrefix(upper, verb) {
			return verb
		}
	}
	return "UNKNOWN"
}
