package terminal

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"shardz/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients connect from the dashboard origin
	},
}

// newSessionCmd builds the shell subprocess for a tenant. Swappable for tests.
var newSessionCmd = defaultSessionCmd

func defaultSessionCmd(psqlPath, host string, port int, inst *model.DatabaseInstance) *exec.Cmd {
	cmd := exec.Command(psqlPath,
		"-h", host,
		"-p", strconv.Itoa(port),
		"-U", inst.Username,
		"-d", inst.DatabaseName,
	)
	// The password travels via the environment, never argv: argv is visible
	// to every local user through the process table.
	cmd.Env = append(os.Environ(), "PGPASSWORD="+inst.Password)
	return cmd
}

// session is one live browser terminal bound to one shell subprocess.
type session struct {
	id      string
	conn    *websocket.Conn
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	done    chan struct{}
}

// Manager owns all live terminal sessions. Each websocket connection gets its
// own subprocess; disconnecting tears the subprocess down.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	psqlPath string
	host     string
	port     int
	logger   zerolog.Logger
}

// NewManager creates a new terminal session Manager.
func NewManager(psqlPath, tenantHost string, tenantPort int, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		psqlPath: psqlPath,
		host:     tenantHost,
		port:     tenantPort,
		logger:   logger.With().Str("component", "TerminalManager").Logger(),
	}
}

// SessionCount reports the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown terminates every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}

// HandleSession upgrades the request to a websocket and runs an interactive
// shell against the tenant until either side goes away. The caller has
// already authenticated the user and checked tenant ownership.
func (m *Manager) HandleSession(w http.ResponseWriter, r *http.Request, inst *model.DatabaseInstance) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	cmd := newSessionCmd(m.psqlPath, m.host, m.port, inst)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		m.closeWithError(conn, "terminal unavailable")
		return
	}

	// stdout and stderr share one pipe so output interleaves the way a real
	// terminal shows it.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		m.logger.Error().Err(err).Str("database", inst.DatabaseName).Msg("shell spawn failed")
		m.closeWithError(conn, "terminal unavailable")
		return
	}

	s := &session{
		id:    uuid.NewString(),
		conn:  conn,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", s.id).
		Str("database", inst.DatabaseName).
		Msg("terminal session opened")

	go m.streamOutput(s, pr)
	go func() {
		cmd.Wait()
		pw.Close()
		close(s.done)
	}()

	// Read loop runs on the handler goroutine; returning from the handler
	// would close the connection under us otherwise.
	m.readLoop(s, inst.DatabaseName)
}

// readLoop forwards client frames to the subprocess stdin.
func (m *Manager) readLoop(s *session, database string) {
	defer func() {
		m.mu.Lock()
		if existing, ok := m.sessions[s.id]; ok && existing == s {
			delete(m.sessions, s.id)
		}
		m.mu.Unlock()

		s.stdin.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.conn.Close()
		m.logger.Info().Str("session_id", s.id).Str("database", database).Msg("terminal session closed")
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn().Err(err).Str("session_id", s.id).Msg("terminal read error")
			}
			return
		}
		select {
		case <-s.done:
			return
		default:
		}

		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		if _, err := s.stdin.Write(data); err != nil {
			return
		}
	}
}

// streamOutput relays subprocess output lines to the websocket.
func (m *Manager) streamOutput(s *session, out io.Reader) {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.writeMu.Lock()
		err := s.conn.WriteMessage(websocket.TextMessage, scanner.Bytes())
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}

	// Subprocess exited; tell the client and close from our side.
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(5*time.Second))
	s.writeMu.Unlock()
	s.conn.Close()
}

func (m *Manager) closeWithError(conn *websocket.Conn, msg string) {
	conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("error: %s", msg)))
	conn.Close()
}
