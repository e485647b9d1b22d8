package services

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/models"
	"chess-orchestrator/pkg/uci"

	"github.com/notnil/chess"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	completionProgress     = 100.0
	nearCompletionProgress = 99.99

	// Clocks handed to the engine are shaved by a safety margin so a
	// near-flag engine does not think it has more time than the UI shows.
	clockSafetyMarginMs = 100

	// Depth requests at or beyond this are considered deep enough to
	// convert to a bounded movetime when responsive mode is on.
	deepDepthThreshold   = 15
	responsiveMovetimeMs = 4000

	hashFloorMB = 16
)

// Session is the per-(tab, engine) analysis state: the engine process, the
// last applied options, the in-flight multipv buffer, the last assembled
// snapshot, and the emission scheduler state. All fields are guarded by mu;
// mu is never held across sleeps or channel waits.
type Session struct {
	mu sync.Mutex

	// restartMu serializes whole restart sequences; mu alone only guards
	// individual state transitions and is never held across the drain
	// sleep.
	restartMu sync.Mutex

	proc     *uci.Process
	chessSvc *ChessService
	sink     EventSink
	engCfg   configs.EngineConfig
	emitCfg  configs.EmitConfig

	id     string
	tab    string
	engine string

	options     models.EngineOptions
	goMode      uci.GoMode
	position    *chess.Position
	running     bool
	crashed     bool
	realMultiPV uint16

	partial      []models.BestMoves
	lastSnapshot []models.BestMoves
	lastDepth    uint32
	lastProgress float32

	lastEmitAt    time.Time
	lastEmitDepth uint32
	pending       *models.BestMovesPayload
	pendingDepth  uint32
	limiter       *rate.Limiter

	startedAt    time.Time
	lastActivity time.Time

	readyCh    chan struct{}
	loopActive bool
}

func newSession(proc *uci.Process, chessSvc *ChessService, sink EventSink, engCfg configs.EngineConfig, emitCfg configs.EmitConfig, id, tab, engine string) *Session {
	return &Session{
		proc:         proc,
		chessSvc:     chessSvc,
		sink:         sink,
		engCfg:       engCfg,
		emitCfg:      emitCfg,
		id:           id,
		tab:          tab,
		engine:       engine,
		limiter:      rate.NewLimiter(rate.Limit(emitCfg.EventsPerSecond), emitCfg.Burst),
		readyCh:      make(chan struct{}, 1),
		lastActivity: time.Now(),
	}
}

// CachedResult returns the latest progress and snapshot when the requested
// parameters match the running analysis exactly. No UCI traffic is issued on
// this path.
func (s *Session) CachedResult(options models.EngineOptions, goMode uci.GoMode) (float32, []models.BestMoves, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.goMode == goMode && s.options.Equal(options) {
		snapshot := make([]models.BestMoves, len(s.lastSnapshot))
		copy(snapshot, s.lastSnapshot)
		return s.lastProgress, snapshot, true
	}
	return 0, nil, false
}

// Restart stops the current search, lets in-flight info lines drain, then
// applies the new parameters and issues a fresh go.
func (s *Session) Restart(id string, options models.EngineOptions, goMode uci.GoMode) error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	if err := s.Stop(); err != nil {
		return err
	}
	time.Sleep(s.engCfg.StopDelay)

	s.mu.Lock()
	s.id = id
	s.mu.Unlock()

	if err := s.SetOptions(options); err != nil {
		return err
	}
	return s.Go(goMode)
}

// SetOptions replays the requested position, clamps MultiPV against its legal
// moves, pushes changed options and the position to the engine, and resets
// the analysis state.
func (s *Session) SetOptions(options models.EngineOptions) error {
	pos, err := s.chessSvc.Replay(options.Fen, options.Moves)
	if err != nil {
		return err
	}
	if s.chessSvc.GameOver(pos) {
		return fmt.Errorf("%w: game is over", models.ErrInvalidEngineState)
	}

	requested, err := extractMultiPV(options.ExtraOptions)
	if err != nil {
		return err
	}
	realMultiPV := clampMultiPV(requested, s.chessSvc.LegalMoveCount(pos))

	s.mu.Lock()
	current := s.options
	s.mu.Unlock()

	for _, opt := range options.ExtraOptions {
		if current.Contains(opt) {
			continue
		}
		if opt.Name == "Hash" {
			if err := s.setHashOption(opt.Value); err != nil {
				return err
			}
			continue
		}
		if err := s.proc.Send(uci.CommandSetOption(opt.Name, opt.Value)); err != nil {
			return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
		}
	}

	if options.Fen != current.Fen || !sameMoves(options.Moves, current.Moves) {
		if err := s.proc.Send(uci.CommandPosition(options.Fen, options.Moves)); err != nil {
			return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
		}
	}

	s.mu.Lock()
	s.options = options
	s.position = pos
	s.realMultiPV = realMultiPV
	s.lastDepth = 0
	s.partial = nil
	s.lastSnapshot = nil
	s.lastEmitDepth = 0
	s.pending = nil
	s.mu.Unlock()

	return nil
}

// setHashOption applies the Hash option with a responsiveness probe: engines
// that cannot allocate the requested table may go quiet instead of failing,
// so after each attempt the engine is pinged with isready and the value is
// halved on silence, down to a floor.
func (s *Session) setHashOption(value string) error {
	mb, err := strconv.Atoi(value)
	if err != nil || mb <= 0 {
		mb = hashFloorMB
	}

	for {
		if err := s.proc.Send(uci.CommandSetOption("Hash", strconv.Itoa(mb))); err != nil {
			return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
		}
		if err := s.proc.Send(uci.CommandIsReady); err != nil {
			return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
		}
		if s.waitReady(s.engCfg.QuiescenceTimeout) {
			return nil
		}
		if mb <= hashFloorMB {
			return fmt.Errorf("%w: engine unresponsive at %d MB", models.ErrHashAllocation, mb)
		}
		mb /= 2
		if mb < hashFloorMB {
			mb = hashFloorMB
		}
		logrus.Warnf("engine unresponsive after Hash setoption, retrying with %d MB (tab=%s engine=%s)", mb, s.tab, s.engine)
	}
}

// waitReady waits for the engine's readyok. When the communication loop is
// active it consumes all lines, so the readyok arrives via readyCh; otherwise
// lines are read directly.
func (s *Session) waitReady(timeout time.Duration) bool {
	s.mu.Lock()
	viaLoop := s.loopActive
	// Drop a stale token from an earlier exchange.
	select {
	case <-s.readyCh:
	default:
	}
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	if viaLoop {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-s.readyCh:
			return true
		case <-timer.C:
			return false
		}
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		line, err := s.proc.ReadLine(remaining)
		if err != nil {
			return false
		}
		if uci.ParseLine(line).Kind == uci.MsgReadyOk {
			return true
		}
	}
}

func (s *Session) signalReady() {
	select {
	case s.readyCh <- struct{}{}:
	default:
	}
}

// Go issues the search command for the given mode and arms the session.
func (s *Session) Go(mode uci.GoMode) error {
	s.mu.Lock()
	if s.crashed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session crashed", models.ErrInvalidEngineState)
	}
	s.goMode = mode
	s.mu.Unlock()

	wire := mode
	if s.engCfg.ResponsiveMode && mode.Kind == uci.GoDepth && mode.Depth >= deepDepthThreshold {
		wire = uci.GoMode{Kind: uci.GoTime, TimeMs: responsiveMovetimeMs}
		logrus.Infof("responsive mode: converting go depth %d to movetime %d ms (tab=%s engine=%s)",
			mode.Depth, responsiveMovetimeMs, s.tab, s.engine)
	}
	if wire.Kind == uci.GoPlayersTime {
		wire.WTime = shaveClock(wire.WTime)
		wire.BTime = shaveClock(wire.BTime)
	}

	if err := s.proc.Send(uci.CommandGo(wire)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.lastActivity = s.startedAt
	s.lastEmitAt = time.Time{}
	s.lastProgress = 0
	s.mu.Unlock()
	return nil
}

func shaveClock(ms uint32) uint32 {
	if ms > clockSafetyMarginMs {
		return ms - clockSafetyMarginMs
	}
	return 1
}

// Stop asks the engine to end the current search. Idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	if err := s.proc.Send(uci.CommandStop); err != nil {
		return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
	}
	return nil
}

// Kill tears the session's engine down.
func (s *Session) Kill() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.proc.Kill()
}

// Logs returns a snapshot of the session's wire log.
func (s *Session) Logs() []uci.EngineLog {
	return s.proc.Logs()
}

// HandleInfo folds one parsed info message into the multipv buffer and, when
// a full snapshot at one depth is assembled, hands it to the scheduler.
// Messages that cannot be converted are logged and skipped; they are never
// fatal to the session.
func (s *Session) HandleInfo(info uci.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	if !info.HasPV {
		return
	}

	best, err := s.buildBestMoves(info)
	if err != nil {
		logrus.Debugf("skipping engine info line: %v (tab=%s engine=%s)", err, s.tab, s.engine)
		return
	}

	// Strict in-order 1..realMultiPV assembly; anything out of sequence is
	// a leftover from an overlapping depth and is dropped.
	if int(best.MultiPV) != len(s.partial)+1 {
		return
	}
	s.partial = append(s.partial, best)

	if best.MultiPV != s.realMultiPV {
		return
	}

	depth := best.Depth
	complete := s.lastDepth <= depth
	for _, line := range s.partial {
		if line.Depth != depth {
			complete = false
			break
		}
	}

	if complete {
		s.lastSnapshot = s.partial
		s.lastDepth = depth
		progress := calculateProgress(s.goMode, depth, uint64(best.Nodes), time.Since(s.startedAt))
		s.scheduleEmit(depth, progress)
	}
	s.partial = nil
}

// buildBestMoves converts an info message into a BestMoves line, translating
// the PV to SAN and flipping the score to White's perspective when Black is
// to move. Called with the lock held.
func (s *Session) buildBestMoves(info uci.Info) (models.BestMoves, error) {
	if s.position == nil {
		return models.BestMoves{}, fmt.Errorf("%w: no position set", models.ErrInvalidEngineState)
	}

	uciMoves, sanMoves, err := s.chessSvc.PVToSAN(s.position, info.PV)
	if err != nil {
		return models.BestMoves{}, err
	}
	if len(uciMoves) == 0 {
		return models.BestMoves{}, models.ErrNoMovesFound
	}

	score := uci.Score{Type: "cp"}
	if info.Score != nil {
		score = *info.Score
	}
	if s.position.Turn() == chess.Black {
		score = score.Invert()
	}

	return models.BestMoves{
		Nodes:    uint32(info.Nodes),
		Depth:    info.Depth,
		Score:    score,
		UCIMoves: uciMoves,
		SANMoves: sanMoves,
		MultiPV:  info.MultiPV,
		NPS:      info.NPS,
	}, nil
}

// scheduleEmit applies the emission rules for a freshly assembled snapshot:
// first emission and depth progression go out immediately; same-depth updates
// are paced by the minimum interval and the token bucket, with the newest
// snapshot parked as pending otherwise. Called with the lock held.
func (s *Session) scheduleEmit(depth uint32, progress float64) {
	payload := s.payloadLocked(progress)

	switch {
	case s.lastEmitAt.IsZero():
		s.emitLocked(payload, depth)
	case depth > s.lastEmitDepth:
		s.emitLocked(payload, depth)
	case depth == s.lastEmitDepth &&
		time.Since(s.lastEmitAt) >= s.emitCfg.MinInterval &&
		s.limiter.Allow():
		s.emitLocked(payload, depth)
	default:
		s.pending = &payload
		s.pendingDepth = depth
	}
}

// FlushPending delivers the parked snapshot once the stream has been quiet
// long enough, guaranteeing eventual delivery of the latest state.
func (s *Session) FlushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || time.Since(s.lastEmitAt) < s.emitCfg.MaxInterval {
		return
	}
	payload := *s.pending
	s.emitLocked(payload, s.pendingDepth)
}

// HandleBestMove finalizes the analysis: the last snapshot goes out once more
// at progress 100 and the session leaves the running state.
func (s *Session) HandleBestMove() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	payload := s.payloadLocked(completionProgress)
	s.emitLocked(payload, s.lastDepth)
}

func (s *Session) payloadLocked(progress float64) models.BestMovesPayload {
	lines := make([]models.BestMoves, len(s.lastSnapshot))
	copy(lines, s.lastSnapshot)
	return models.BestMovesPayload{
		BestLines: lines,
		Engine:    s.id,
		Tab:       s.tab,
		Fen:       s.options.Fen,
		Moves:     s.options.Moves,
		Progress:  progress,
	}
}

func (s *Session) emitLocked(payload models.BestMovesPayload, depth uint32) {
	s.sink.EmitBestMoves(payload)
	s.lastEmitAt = time.Now()
	s.lastEmitDepth = depth
	s.lastProgress = float32(payload.Progress)
	s.pending = nil
}

// Snapshot returns a copy of the last fully assembled PV set.
func (s *Session) Snapshot() []models.BestMoves {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]models.BestMoves, len(s.lastSnapshot))
	copy(snapshot, s.lastSnapshot)
	return snapshot
}

// Expired reports whether the session has gone silent past its allowance: no
// info line (heartbeat or analysis) while running, plus the mode's own time
// budget when it has one.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	if time.Since(s.lastActivity) > s.engCfg.IdleTimeout {
		return true
	}

	var budget time.Duration
	switch s.goMode.Kind {
	case uci.GoTime:
		budget = time.Duration(s.goMode.TimeMs) * time.Millisecond
	case uci.GoPlayersTime:
		longest := s.goMode.WTime
		if s.goMode.BTime > longest {
			longest = s.goMode.BTime
		}
		budget = time.Duration(longest) * time.Millisecond
	default:
		return false
	}
	return time.Since(s.startedAt) > budget+s.engCfg.IdleTimeout
}

func (s *Session) markCrashed() {
	s.mu.Lock()
	s.crashed = true
	s.running = false
	s.mu.Unlock()
}

// tryAcquireLoop claims ownership of the communication loop. Only one loop
// may consume a session's line stream at a time.
func (s *Session) tryAcquireLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopActive {
		return false
	}
	s.loopActive = true
	return true
}

func (s *Session) releaseLoop() {
	s.mu.Lock()
	s.loopActive = false
	s.mu.Unlock()
}

// calculateProgress maps the current search state onto a 0..100 scale for the
// given go mode. Open-ended modes sit just below complete until bestmove.
func calculateProgress(mode uci.GoMode, depth uint32, nodes uint64, elapsed time.Duration) float64 {
	var progress float64
	switch mode.Kind {
	case uci.GoDepth:
		if mode.Depth > 0 {
			progress = float64(depth) / float64(mode.Depth) * completionProgress
		}
	case uci.GoTime:
		if mode.TimeMs > 0 {
			progress = float64(elapsed.Milliseconds()) / float64(mode.TimeMs) * completionProgress
		}
	case uci.GoNodes:
		if mode.Nodes > 0 {
			progress = float64(nodes) / float64(mode.Nodes) * completionProgress
		}
	default:
		progress = nearCompletionProgress
	}
	if progress > completionProgress {
		progress = completionProgress
	}
	return progress
}

// extractMultiPV reads the requested MultiPV out of the option list,
// defaulting to 1 and treating 0 as 1.
func extractMultiPV(options []models.EngineOption) (uint16, error) {
	for _, opt := range options {
		if opt.Name != "MultiPV" {
			continue
		}
		v, err := strconv.ParseUint(opt.Value, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", models.ErrInvalidMultiPV, opt.Value)
		}
		if v == 0 {
			return 1, nil
		}
		return uint16(v), nil
	}
	return 1, nil
}

func clampMultiPV(requested uint16, legalMoves int) uint16 {
	if legalMoves < 1 {
		return 1
	}
	if int(requested) > legalMoves {
		return uint16(legalMoves)
	}
	return requested
}

func sameMoves(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
