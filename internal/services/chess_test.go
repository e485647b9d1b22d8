package services

import (
	"errors"
	"testing"

	"chess-orchestrator/internal/models"

	"github.com/notnil/chess"
)

func TestReplayAppliesMoves(t *testing.T) {
	svc := NewChessService()

	pos, err := svc.Replay("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", []string{"e2e4", "e7e5"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if pos.Turn() != chess.White {
		t.Errorf("expected white to move after 1. e4 e5, got %v", pos.Turn())
	}
}

func TestReplayRejectsBadFen(t *testing.T) {
	svc := NewChessService()

	_, err := svc.Replay("not a fen", nil)
	if !errors.Is(err, models.ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestReplayRejectsIllegalMove(t *testing.T) {
	svc := NewChessService()

	_, err := svc.Replay("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", []string{"e2e5"})
	if !errors.Is(err, models.ErrIllegalMove) {
		t.Errorf("expected ErrIllegalMove, got %v", err)
	}
}

func TestPVToSAN(t *testing.T) {
	svc := NewChessService()
	pos, err := svc.Replay("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	uciMoves, sanMoves, err := svc.PVToSAN(pos, []string{"g1f3", "g8f6", "b1c3"})
	if err != nil {
		t.Fatalf("pv conversion failed: %v", err)
	}

	if len(uciMoves) != len(sanMoves) || len(uciMoves) != 3 {
		t.Fatalf("expected 3 parallel moves, got %d uci / %d san", len(uciMoves), len(sanMoves))
	}
	expectedSAN := []string{"Nf3", "Nf6", "Nc3"}
	for i, san := range expectedSAN {
		if sanMoves[i] != san {
			t.Errorf("move %d: expected SAN %q, got %q", i, san, sanMoves[i])
		}
	}
}

func TestPVToSANMateSuffix(t *testing.T) {
	svc := NewChessService()
	// Scholar's mate, one move before the end.
	pos, err := svc.Replay("r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/8/PPPP1PPP/RNBQK1NR w KQkq - 4 4", []string{"d1f3", "g8f6"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	_, sanMoves, err := svc.PVToSAN(pos, []string{"f3f7"})
	if err != nil {
		t.Fatalf("pv conversion failed: %v", err)
	}
	if sanMoves[0] != "Qxf7#" {
		t.Errorf("expected mate suffix on Qxf7#, got %q", sanMoves[0])
	}
}

func TestPVToSANIllegalMove(t *testing.T) {
	svc := NewChessService()
	pos, err := svc.Replay("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	_, _, err = svc.PVToSAN(pos, []string{"e2e4", "e2e4"})
	if !errors.Is(err, models.ErrIllegalMove) {
		t.Errorf("expected ErrIllegalMove for a stale pv, got %v", err)
	}
}

func TestGameOver(t *testing.T) {
	svc := NewChessService()

	mate, err := svc.Replay("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !svc.GameOver(mate) {
		t.Error("expected fool's mate to be game over")
	}

	start, err := svc.Replay("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if svc.GameOver(start) {
		t.Error("starting position is not game over")
	}
}

func TestLegalMoveCountClamp(t *testing.T) {
	svc := NewChessService()

	// White is in check from the g2 pawn and Kg1 is the only way out.
	pos, err := svc.Replay("8/8/8/8/8/6k1/6p1/7K w - - 0 1", nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	legal := svc.LegalMoveCount(pos)
	if legal != 1 {
		t.Fatalf("expected exactly one legal move, got %d", legal)
	}
	if clamped := clampMultiPV(5, legal); clamped != 1 {
		t.Errorf("expected multipv clamped to 1, got %d", clamped)
	}
	if clamped := clampMultiPV(1, 30); clamped != 1 {
		t.Errorf("expected requested multipv preserved, got %d", clamped)
	}
}
