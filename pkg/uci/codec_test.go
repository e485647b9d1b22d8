package uci

import (
	"reflect"
	"testing"
)

func TestParseInfoLine(t *testing.T) {
	testCases := []struct {
		line        string
		depth       uint32
		multipv     uint16
		scoreType   string
		scoreValue  int32
		wdl         *WDL
		nodes       uint64
		nps         uint32
		pv          []string
		hasPV       bool
		description string
	}{
		{
			line:        "info depth 10 multipv 1 score cp 35 nodes 12345 nps 99000 pv e2e4 e7e5",
			depth:       10,
			multipv:     1,
			scoreType:   "cp",
			scoreValue:  35,
			nodes:       12345,
			nps:         99000,
			pv:          []string{"e2e4", "e7e5"},
			hasPV:       true,
			description: "full centipawn line",
		},
		{
			line:        "info depth 22 multipv 2 score mate -3 nodes 1 nps 1 pv g8f6",
			depth:       22,
			multipv:     2,
			scoreType:   "mate",
			scoreValue:  -3,
			nodes:       1,
			nps:         1,
			pv:          []string{"g8f6"},
			hasPV:       true,
			description: "negative mate score",
		},
		{
			line:        "info depth 18 score cp 51 wdl 412 531 57 nodes 7 nps 7 pv d2d4",
			depth:       18,
			multipv:     1,
			scoreType:   "cp",
			scoreValue:  51,
			wdl:         &WDL{Win: 412, Draw: 531, Loss: 57},
			nodes:       7,
			nps:         7,
			pv:          []string{"d2d4"},
			hasPV:       true,
			description: "wdl triple, multipv defaulted",
		},
		{
			line:        "info depth 5 seldepth 8 nodes 100 nps 50000 hashfull 3 time 17",
			depth:       5,
			multipv:     1,
			nodes:       100,
			nps:         50000,
			description: "heartbeat without pv",
		},
		{
			line:        "info depth 12 score cp 10 lowerbound nodes 4 pv e2e4",
			depth:       12,
			multipv:     1,
			scoreType:   "cp",
			scoreValue:  10,
			nodes:       4,
			pv:          []string{"e2e4"},
			hasPV:       true,
			description: "lowerbound marker skipped",
		},
	}

	for _, tc := range testCases {
		msg := ParseLine(tc.line)
		if msg.Kind != MsgInfo {
			t.Errorf("%s: expected info message, got kind %d", tc.description, msg.Kind)
			continue
		}
		info := msg.Info

		if info.Depth != tc.depth {
			t.Errorf("%s: expected depth %d, got %d", tc.description, tc.depth, info.Depth)
		}
		if info.MultiPV != tc.multipv {
			t.Errorf("%s: expected multipv %d, got %d", tc.description, tc.multipv, info.MultiPV)
		}
		if info.Nodes != tc.nodes {
			t.Errorf("%s: expected nodes %d, got %d", tc.description, tc.nodes, info.Nodes)
		}
		if info.NPS != tc.nps {
			t.Errorf("%s: expected nps %d, got %d", tc.description, tc.nps, info.NPS)
		}
		if info.HasPV != tc.hasPV {
			t.Errorf("%s: expected hasPV %t, got %t", tc.description, tc.hasPV, info.HasPV)
		}
		if !reflect.DeepEqual(info.PV, tc.pv) {
			t.Errorf("%s: expected pv %v, got %v", tc.description, tc.pv, info.PV)
		}

		if tc.scoreType == "" {
			if info.Score != nil {
				t.Errorf("%s: expected no score, got %+v", tc.description, info.Score)
			}
			continue
		}
		if info.Score == nil {
			t.Errorf("%s: expected score, got none", tc.description)
			continue
		}
		if info.Score.Type != tc.scoreType || info.Score.Value != tc.scoreValue {
			t.Errorf("%s: expected score %s %d, got %s %d",
				tc.description, tc.scoreType, tc.scoreValue, info.Score.Type, info.Score.Value)
		}
		if !reflect.DeepEqual(info.Score.WDL, tc.wdl) {
			t.Errorf("%s: expected wdl %+v, got %+v", tc.description, tc.wdl, info.Score.WDL)
		}
	}
}

func TestParseControlLines(t *testing.T) {
	if ParseLine("uciok").Kind != MsgUciOk {
		t.Error("expected uciok to parse")
	}
	if ParseLine("readyok").Kind != MsgReadyOk {
		t.Error("expected readyok to parse")
	}

	msg := ParseLine("id name Stockfish 16.1")
	if msg.Kind != MsgIDName || msg.Name != "Stockfish 16.1" {
		t.Errorf("expected id name Stockfish 16.1, got kind=%d name=%q", msg.Kind, msg.Name)
	}

	msg = ParseLine("bestmove e2e4 ponder e7e5")
	if msg.Kind != MsgBestMove || msg.BestMove != "e2e4" || msg.Ponder != "e7e5" {
		t.Errorf("unexpected bestmove parse: %+v", msg)
	}

	msg = ParseLine("bestmove (none)")
	if msg.Kind != MsgBestMove || msg.BestMove != "(none)" {
		t.Errorf("unexpected bestmove parse: %+v", msg)
	}

	if ParseLine("Stockfish 16 by the Stockfish developers").Kind != MsgUnknown {
		t.Error("expected banner line to be unknown")
	}
	if ParseLine("").Kind != MsgUnknown {
		t.Error("expected empty line to be unknown")
	}
}

func TestParseOptionConfig(t *testing.T) {
	testCases := []struct {
		line     string
		expected OptionConfig
	}{
		{
			line:     "option name Hash type spin default 16 min 1 max 33554432",
			expected: OptionConfig{Name: "Hash", Type: "spin", Default: "16", Min: 1, Max: 33554432},
		},
		{
			line:     "option name Clear Hash type button",
			expected: OptionConfig{Name: "Clear Hash", Type: "button"},
		},
		{
			line: "option name UCI_Variant type combo default chess var chess var atomic",
			expected: OptionConfig{
				Name: "UCI_Variant", Type: "combo", Default: "chess",
				Var: []string{"chess", "atomic"},
			},
		},
		{
			line:     "option name Ponder type check default false",
			expected: OptionConfig{Name: "Ponder", Type: "check", Default: "false"},
		},
	}

	for _, tc := range testCases {
		msg := ParseLine(tc.line)
		if msg.Kind != MsgOption {
			t.Errorf("%q: expected option message", tc.line)
			continue
		}
		if !reflect.DeepEqual(msg.Option, tc.expected) {
			t.Errorf("%q: expected %+v, got %+v", tc.line, tc.expected, msg.Option)
		}
	}
}

func TestCommandEncoding(t *testing.T) {
	testCases := []struct {
		got      string
		expected string
	}{
		{CommandSetOption("MultiPV", "3"), "setoption name MultiPV value 3\n"},
		{CommandPosition("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", nil),
			"position fen rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1\n"},
		{CommandPosition("8/8/8/8/8/6k1/6p1/7K w - - 0 1", []string{"h1g1", "g3f2"}),
			"position fen 8/8/8/8/8/6k1/6p1/7K w - - 0 1 moves h1g1 g3f2\n"},
		{CommandGo(GoMode{Kind: GoDepth, Depth: 30}), "go depth 30\n"},
		{CommandGo(GoMode{Kind: GoTime, TimeMs: 4000}), "go movetime 4000\n"},
		{CommandGo(GoMode{Kind: GoNodes, Nodes: 5000000}), "go nodes 5000000\n"},
		{CommandGo(GoMode{Kind: GoPlayersTime, WTime: 60000, BTime: 55000, WInc: 1000, BInc: 1000}),
			"go wtime 60000 btime 55000 winc 1000 binc 1000\n"},
		{CommandGo(GoMode{Kind: GoInfinite}), "go infinite\n"},
	}

	for _, tc := range testCases {
		if tc.got != tc.expected {
			t.Errorf("expected %q, got %q", tc.expected, tc.got)
		}
	}
}

func TestScoreInvert(t *testing.T) {
	score := Score{Type: "cp", Value: 35, WDL: &WDL{Win: 700, Draw: 250, Loss: 50}}
	inverted := score.Invert()

	if inverted.Value != -35 {
		t.Errorf("expected inverted cp -35, got %d", inverted.Value)
	}
	if inverted.WDL.Win != 50 || inverted.WDL.Draw != 250 || inverted.WDL.Loss != 700 {
		t.Errorf("expected wdl swapped, got %+v", inverted.WDL)
	}

	mate := Score{Type: "mate", Value: -4}
	if mate.Invert().Value != 4 {
		t.Errorf("expected inverted mate 4, got %d", mate.Invert().Value)
	}
	if mate.Invert().WDL != nil {
		t.Error("expected nil wdl to stay nil")
	}
}
