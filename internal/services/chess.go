package services

import (
	"fmt"

	"chess-orchestrator/internal/models"

	"github.com/notnil/chess"
)

// ChessService replays positions and converts engine PVs between UCI and SAN.
// It wraps the external rules engine; no chess logic lives anywhere else in
// the core except the sacrifice evaluator.
type ChessService struct{}

// NewChessService creates a new chess service.
func NewChessService() *ChessService {
	return &ChessService{}
}

// Replay parses a FEN and applies the given UCI moves in order, returning the
// resulting position.
func (s *ChessService) Replay(fen string, moves []string) (*chess.Position, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPosition, err)
	}
	pos := chess.NewGame(fenOpt).Position()

	for _, moveStr := range moves {
		move, err := s.decodeLegal(pos, moveStr)
		if err != nil {
			return nil, err
		}
		pos = pos.Update(move)
	}

	return pos, nil
}

// decodeLegal resolves a UCI move string against the position's legal moves.
// Decoding alone does not check legality, so the move is matched against
// ValidMoves and the matched instance (with its tags) is returned.
func (s *ChessService) decodeLegal(pos *chess.Position, moveStr string) (*chess.Move, error) {
	move, err := chess.UCINotation{}.Decode(pos, moveStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIllegalMove, moveStr, err)
	}
	for _, valid := range pos.ValidMoves() {
		if valid.S1() == move.S1() && valid.S2() == move.S2() && valid.Promo() == move.Promo() {
			return valid, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not legal here", models.ErrIllegalMove, moveStr)
}

// PVToSAN runs a principal variation against a copy of the position and
// returns the parallel UCI and SAN move lists. SAN strings carry check and
// mate suffixes.
func (s *ChessService) PVToSAN(pos *chess.Position, pvUCI []string) ([]string, []string, error) {
	sanNotation := chess.AlgebraicNotation{}

	uciMoves := make([]string, 0, len(pvUCI))
	sanMoves := make([]string, 0, len(pvUCI))

	current := pos
	for _, moveStr := range pvUCI {
		move, err := s.decodeLegal(current, moveStr)
		if err != nil {
			return nil, nil, err
		}
		uciMoves = append(uciMoves, moveStr)
		sanMoves = append(sanMoves, sanNotation.Encode(current, move))
		current = current.Update(move)
	}

	return uciMoves, sanMoves, nil
}

// GameOver reports whether the position has no continuation (checkmate or
// stalemate).
func (s *ChessService) GameOver(pos *chess.Position) bool {
	return pos.Status() != chess.NoMethod
}

// LegalMoveCount returns the number of legal moves at the position.
func (s *ChessService) LegalMoveCount(pos *chess.Position) int {
	return len(pos.ValidMoves())
}
