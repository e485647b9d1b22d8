package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/models"
	"chess-orchestrator/pkg/uci"

	"github.com/notnil/chess"
	"github.com/sirupsen/logrus"
)

const engineConfigTimeout = 10 * time.Second

// analysisPosition is one stop of the game analysis pipeline: the position's
// own FEN (for database lookups), the move prefix that reaches it from the
// root, and whether the move leading here gave up material.
type analysisPosition struct {
	fen       string
	moves     []string
	sacrifice bool
}

// AnalysisService drives whole-game analysis through a single dedicated
// engine, one position at a time.
type AnalysisService struct {
	chessSvc *ChessService
	sink     EventSink
	cfg      *configs.Config
	openDB   PositionDBOpener
}

// NewAnalysisService creates the game analysis pipeline.
func NewAnalysisService(cfg *configs.Config, chessSvc *ChessService, sink EventSink, openDB PositionDBOpener) *AnalysisService {
	return &AnalysisService{
		chessSvc: chessSvc,
		sink:     sink,
		cfg:      cfg,
		openDB:   openDB,
	}
}

// AnalyzeGame analyzes every non-terminal position of a game in sequence and
// returns one MoveAnalysis per position, annotated with sacrifice flags and,
// when requested, the game's novelty.
func (s *AnalysisService) AnalyzeGame(ctx context.Context, id, enginePath string, goMode uci.GoMode, options models.AnalysisOptions, uciOptions []models.EngineOption) ([]models.MoveAnalysis, error) {
	var db PositionDB
	if options.AnnotateNovelties {
		if options.ReferenceDB == "" || s.openDB == nil {
			return nil, models.ErrMissingReferenceDatabase
		}
		opened, err := s.openDB(options.ReferenceDB)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMissingReferenceDatabase, err)
		}
		db = opened
	}

	positions, err := s.buildPositions(options.Fen, options.Moves)
	if err != nil {
		return nil, err
	}
	if options.Reversed {
		reverse(positions)
	}

	proc, err := uci.Start(enginePath, s.cfg.Engine.SessionLogCap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEngineCrashed, err)
	}
	defer proc.Kill()
	if err := proc.Handshake(s.cfg.Engine.HandshakeTimeout); err != nil {
		if errors.Is(err, uci.ErrReadTimeout) {
			return nil, fmt.Errorf("%w: handshake", models.ErrEngineTimeout)
		}
		return nil, fmt.Errorf("%w: handshake: %v", models.ErrEngineCrashed, err)
	}

	// The pipeline always runs two PVs so the played move can be compared
	// against the engine's alternative.
	extraOptions := forceMultiPV(uciOptions, "2")

	sess := newSession(proc, s.chessSvc, NopSink{}, s.cfg.Engine, s.cfg.Emit, id, "analysis", enginePath)

	analysis := make([]models.MoveAnalysis, 0, len(positions))
	for i, position := range positions {
		s.sink.EmitReportProgress(models.ReportProgress{
			Progress: float64(i) / float64(len(positions)) * completionProgress,
			ID:       id,
			Finished: false,
		})

		current := models.MoveAnalysis{}
		engineOpts := models.EngineOptions{
			Fen:          options.Fen,
			Moves:        position.moves,
			ExtraOptions: extraOptions,
		}

		if err := sess.SetOptions(engineOpts); err != nil {
			logrus.Warnf("skipping position %d: set options failed: %v", i, err)
			analysis = append(analysis, current)
			continue
		}
		if err := sess.Go(goMode); err != nil {
			logrus.Warnf("skipping position %d: go failed: %v", i, err)
			analysis = append(analysis, current)
			continue
		}

		if err := s.drainUntilBestMove(proc, sess); err != nil {
			logrus.Warnf("analysis stream ended early at position %d: %v", i, err)
			current.Best = sess.Snapshot()
			analysis = append(analysis, current)
			break
		}

		current.Best = sess.Snapshot()
		analysis = append(analysis, current)
	}
	// Positions left unanalyzed after an early stream end get empty entries,
	// keeping results aligned with positions.
	for len(analysis) < len(positions) {
		analysis = append(analysis, models.MoveAnalysis{})
	}

	if options.Reversed {
		reverse(analysis)
		reverse(positions)
	}

	noveltyFound := false
	for i := range analysis {
		if i >= len(positions) {
			break
		}
		analysis[i].IsSacrifice = positions[i].sacrifice

		if db == nil || noveltyFound {
			continue
		}
		known, err := db.IsPositionInDB(ctx, positions[i].fen, true)
		if err != nil {
			return nil, fmt.Errorf("reference database query failed: %w", err)
		}
		if !known {
			analysis[i].Novelty = true
			noveltyFound = true
		}
	}

	s.sink.EmitReportProgress(models.ReportProgress{
		Progress: completionProgress,
		ID:       id,
		Finished: true,
	})
	return analysis, nil
}

// buildPositions replays the game and collects the root plus every
// non-terminal position, tagging each with its sacrifice flag.
func (s *AnalysisService) buildPositions(fen string, moves []string) ([]analysisPosition, error) {
	pos, err := s.chessSvc.Replay(fen, nil)
	if err != nil {
		return nil, err
	}

	positions := []analysisPosition{{fen: pos.String(), moves: nil}}

	for i, moveStr := range moves {
		move, err := s.chessSvc.decodeLegal(pos, moveStr)
		if err != nil {
			return nil, err
		}
		prev := pos
		pos = pos.Update(move)

		if pos.Status() != chess.NoMethod {
			break
		}
		prefix := make([]string, i+1)
		copy(prefix, moves[:i+1])
		positions = append(positions, analysisPosition{
			fen:       pos.String(),
			moves:     prefix,
			sacrifice: IsSacrifice(prev, pos),
		})
	}

	return positions, nil
}

// drainUntilBestMove consumes the engine stream for one position, folding
// info lines into the session until the search reports its best move.
func (s *AnalysisService) drainUntilBestMove(proc *uci.Process, sess *Session) error {
	for {
		line, err := proc.ReadLine(s.cfg.Engine.IdleTimeout)
		if errors.Is(err, uci.ErrReadTimeout) {
			return fmt.Errorf("%w: no engine output", models.ErrEngineUnresponsive)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
		}

		msg := uci.ParseLine(line)
		switch msg.Kind {
		case uci.MsgInfo:
			sess.HandleInfo(msg.Info)
		case uci.MsgBestMove:
			return nil
		}
	}
}

// GetEngineConfig probes an engine binary for its name and option list. The
// probe is bounded; a silent or nameless engine falls back to the file stem.
func (s *AnalysisService) GetEngineConfig(path string) (models.EngineConfig, error) {
	config := models.EngineConfig{Options: []uci.OptionConfig{}}

	proc, err := uci.Start(path, s.cfg.Engine.SessionLogCap)
	if err != nil {
		return config, fmt.Errorf("%w: %v", models.ErrEngineCrashed, err)
	}
	defer proc.Kill()

	if err := proc.Send(uci.CommandUci); err != nil {
		return config, fmt.Errorf("%w: %v", models.ErrEngineCommunication, err)
	}

	deadline := time.Now().Add(engineConfigTimeout)
probe:
	for time.Now().Before(deadline) {
		line, err := proc.ReadLine(100 * time.Millisecond)
		if errors.Is(err, uci.ErrReadTimeout) {
			continue
		}
		if err != nil {
			break
		}

		msg := uci.ParseLine(line)
		switch msg.Kind {
		case uci.MsgIDName:
			config.Name = msg.Name
		case uci.MsgOption:
			config.Options = append(config.Options, msg.Option)
		case uci.MsgUciOk:
			break probe
		}
	}

	if config.Name == "" {
		base := filepath.Base(path)
		config.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	logrus.Infof("engine config retrieved: name=%s options=%d", config.Name, len(config.Options))
	return config, nil
}

// forceMultiPV overrides or appends the MultiPV option.
func forceMultiPV(options []models.EngineOption, value string) []models.EngineOption {
	out := make([]models.EngineOption, len(options))
	copy(out, options)
	for i := range out {
		if out[i].Name == "MultiPV" {
			out[i].Value = value
			return out
		}
	}
	return append(out, models.EngineOption{Name: "MultiPV", Value: value})
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
