package services

import (
	"math"
	"sort"

	"github.com/notnil/chess"
)

// Material values in centipawns, used only by the sacrifice heuristic.
const (
	pawnValue   = 100
	knightValue = 300
	bishopValue = 300
	rookValue   = 500
	queenValue  = 900

	matedScore = -10000
)

func pieceValue(pt chess.PieceType) int {
	switch pt {
	case chess.Pawn:
		return pawnValue
	case chess.Knight:
		return knightValue
	case chess.Bishop:
		return bishopValue
	case chess.Rook:
		return rookValue
	case chess.Queen:
		return queenValue
	default:
		return 0
	}
}

// countMaterial scores the position by raw material from the side-to-move's
// perspective. A checkmated side to move scores matedScore.
func countMaterial(pos *chess.Position) int {
	if pos.Status() == chess.Checkmate {
		return matedScore
	}

	var white, black int
	board := pos.Board()
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := board.Piece(sq)
		if piece == chess.NoPiece {
			continue
		}
		if piece.Color() == chess.White {
			white += pieceValue(piece.Type())
		} else {
			black += pieceValue(piece.Type())
		}
	}

	if pos.Turn() == chess.White {
		return white - black
	}
	return black - white
}

// captureValue is the worth of the captured piece, ordering moves by
// most-valuable-victim. En passant captures a pawn off the target square.
func captureValue(pos *chess.Position, move *chess.Move) int {
	if move.HasTag(chess.EnPassant) {
		return pawnValue
	}
	return pieceValue(pos.Board().Piece(move.S2()).Type())
}

// qsearch is a capture-only alpha-beta: stand pat on material, then try
// captures in MVV order until the position is quiet.
func qsearch(pos *chess.Position, alpha, beta int) int {
	standPat := countMaterial(pos)
	if standPat >= beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	var captures []*chess.Move
	for _, move := range pos.ValidMoves() {
		if move.HasTag(chess.Capture) || move.HasTag(chess.EnPassant) {
			captures = append(captures, move)
		}
	}
	sort.SliceStable(captures, func(i, j int) bool {
		return captureValue(pos, captures[i]) > captureValue(pos, captures[j])
	})

	for _, capture := range captures {
		score := -qsearch(pos.Update(capture), -beta, -alpha)
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// naiveEval plays every legal move and takes the best negated quiescence
// score. A side to move with no moves is either mated (math.MinInt32) or
// stalemated (0).
func naiveEval(pos *chess.Position) int {
	moves := pos.ValidMoves()
	if len(moves) == 0 {
		if pos.Status() == chess.Checkmate {
			return math.MinInt32
		}
		return 0
	}

	best := math.MinInt32
	for _, move := range moves {
		score := -qsearch(pos.Update(move), math.MinInt32+1, math.MaxInt32)
		if score > best {
			best = score
		}
	}
	return best
}

// IsSacrifice reports whether moving from prev to curr gave up more than a
// pawn of material in the mover's favor.
func IsSacrifice(prev, curr *chess.Position) bool {
	return naiveEval(prev) > -naiveEval(curr)+100
}
