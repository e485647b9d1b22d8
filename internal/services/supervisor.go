package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/models"
	"chess-orchestrator/pkg/uci"

	"github.com/sirupsen/logrus"
)

type sessionKey struct {
	Tab    string
	Engine string
}

// CachedAnalysis is the synchronous result of the idempotent-reuse path of
// get_best_moves.
type CachedAnalysis struct {
	Progress  float32            `json:"progress"`
	BestLines []models.BestMoves `json:"bestLines"`
}

// EngineService supervises all engine sessions, keyed by (tab, engine). It
// owns the registry; sessions own their process and state.
type EngineService struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session

	chessSvc *ChessService
	sink     EventSink
	cfg      *configs.Config
}

// NewEngineService creates the session supervisor.
func NewEngineService(cfg *configs.Config, chessSvc *ChessService, sink EventSink) *EngineService {
	return &EngineService{
		sessions: make(map[sessionKey]*Session),
		chessSvc: chessSvc,
		sink:     sink,
		cfg:      cfg,
	}
}

// GetBestMoves starts or reuses the session for (tab, engine). When the
// request matches the running analysis exactly, the latest progress and
// snapshot come back synchronously; otherwise nil is returned and snapshots
// arrive on the event stream.
func (s *EngineService) GetBestMoves(id, enginePath, tab string, goMode uci.GoMode, options models.EngineOptions) (*CachedAnalysis, error) {
	key := sessionKey{Tab: tab, Engine: enginePath}

	s.mu.Lock()
	sess, exists := s.sessions[key]
	s.mu.Unlock()

	if exists {
		if progress, lines, hit := sess.CachedResult(options, goMode); hit {
			return &CachedAnalysis{Progress: progress, BestLines: lines}, nil
		}
		if err := sess.Restart(id, options, goMode); err != nil {
			logrus.Errorf("engine restart failed (tab=%s engine=%s): %v", tab, enginePath, err)
			s.remove(key, sess)
			sess.Kill()
			return nil, err
		}
		s.ensureLoop(key, sess)
		return nil, nil
	}

	proc, err := s.spawnWithRetry(enginePath)
	if err != nil {
		return nil, err
	}

	sess = newSession(proc, s.chessSvc, s.sink, s.cfg.Engine, s.cfg.Emit, id, tab, enginePath)
	if err := sess.SetOptions(options); err != nil {
		proc.Kill()
		return nil, err
	}
	if err := sess.Go(goMode); err != nil {
		proc.Kill()
		return nil, err
	}

	s.mu.Lock()
	if previous, ok := s.sessions[key]; ok {
		// A concurrent call for the same key won the spawn race; the
		// newest request is authoritative.
		previous.Kill()
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	s.ensureLoop(key, sess)
	logrus.Infof("engine session started (tab=%s engine=%s)", tab, enginePath)
	return nil, nil
}

// spawnWithRetry starts and handshakes an engine, retrying spawn or
// handshake failures with exponential backoff.
func (s *EngineService) spawnWithRetry(path string) (*uci.Process, error) {
	retries := s.cfg.Engine.SpawnRetries
	if retries < 1 {
		retries = 1
	}
	backoff := s.cfg.Engine.SpawnBackoff

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		proc, err := uci.Start(path, s.cfg.Engine.SessionLogCap)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", models.ErrEngineCrashed, err)
			logrus.Warnf("engine spawn attempt %d failed: %v", attempt+1, err)
			continue
		}

		if err := proc.Handshake(s.cfg.Engine.HandshakeTimeout); err != nil {
			proc.Kill()
			if errors.Is(err, uci.ErrReadTimeout) {
				lastErr = fmt.Errorf("%w: handshake", models.ErrEngineTimeout)
			} else {
				lastErr = fmt.Errorf("%w: handshake: %v", models.ErrEngineCrashed, err)
			}
			logrus.Warnf("engine handshake attempt %d failed: %v", attempt+1, err)
			continue
		}

		return proc, nil
	}
	return nil, lastErr
}

// ensureLoop spawns the communication loop unless one is already consuming
// the session's stream.
func (s *EngineService) ensureLoop(key sessionKey, sess *Session) {
	if sess.tryAcquireLoop() {
		go s.commLoop(key, sess)
	}
}

// commLoop is the per-session reader: it interleaves short blocking reads
// with scheduler ticks, and ends at bestmove, stream EOF, or expiry. The
// session survives a bestmove exit (ready for reuse); stream death removes
// it.
func (s *EngineService) commLoop(key sessionKey, sess *Session) {
	defer sess.releaseLoop()

	for {
		line, err := sess.proc.ReadLine(s.cfg.Engine.ReadPollInterval)
		if errors.Is(err, uci.ErrReadTimeout) {
			sess.FlushPending()
			if sess.Expired() {
				logrus.Errorf("engine unresponsive, terminating session (tab=%s engine=%s)", key.Tab, key.Engine)
				sess.markCrashed()
				s.remove(key, sess)
				sess.Kill()
				return
			}
			continue
		}
		if err != nil {
			logrus.Infof("engine stream closed (tab=%s engine=%s): %v", key.Tab, key.Engine, err)
			sess.markCrashed()
			s.remove(key, sess)
			sess.Kill()
			return
		}

		msg := uci.ParseLine(line)
		switch msg.Kind {
		case uci.MsgInfo:
			sess.HandleInfo(msg.Info)
		case uci.MsgBestMove:
			sess.HandleBestMove()
			return
		case uci.MsgReadyOk:
			sess.signalReady()
		}
	}
}

// StopEngine requests the session's current search to end but keeps the
// session registered.
func (s *EngineService) StopEngine(engine, tab string) error {
	sess := s.lookup(sessionKey{Tab: tab, Engine: engine})
	if sess == nil {
		return nil
	}
	return sess.Stop()
}

// KillEngine tears down the session for (tab, engine) and removes it.
func (s *EngineService) KillEngine(engine, tab string) {
	key := sessionKey{Tab: tab, Engine: engine}
	sess := s.lookup(key)
	if sess == nil {
		return
	}
	s.remove(key, sess)
	sess.Kill()
}

// KillEngines tears down every session whose tab id starts with tab.
func (s *EngineService) KillEngines(tab string) {
	s.mu.Lock()
	var victims []*Session
	for key, sess := range s.sessions {
		if strings.HasPrefix(key.Tab, tab) {
			victims = append(victims, sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	for _, sess := range victims {
		sess.Kill()
	}
}

// GetEngineLogs returns a copy of the session's chronological wire log.
func (s *EngineService) GetEngineLogs(engine, tab string) []uci.EngineLog {
	sess := s.lookup(sessionKey{Tab: tab, Engine: engine})
	if sess == nil {
		return []uci.EngineLog{}
	}
	return sess.Logs()
}

// Shutdown kills every registered session.
func (s *EngineService) Shutdown() {
	s.mu.Lock()
	victims := make([]*Session, 0, len(s.sessions))
	for key, sess := range s.sessions {
		victims = append(victims, sess)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	for _, sess := range victims {
		sess.Kill()
	}
	logrus.Info("engine supervisor shut down")
}

func (s *EngineService) lookup(key sessionKey) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key]
}

// remove deletes the registry entry only if it still maps to the same
// session, so a replacement registered meanwhile is left alone.
func (s *EngineService) remove(key sessionKey, sess *Session) {
	s.mu.Lock()
	if current, ok := s.sessions[key]; ok && current == sess {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
}
