package models

import (
	"chess-orchestrator/pkg/uci"
)

// EngineOption is one name/value UCI option pair. Equality is structural.
type EngineOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EngineOptions describes the full engine setup for one analysis: the root
// FEN, the moves applied from it, and the extra UCI options to set.
type EngineOptions struct {
	Fen          string         `json:"fen"`
	Moves        []string       `json:"moves"`
	ExtraOptions []EngineOption `json:"extraOptions"`
}

// Equal reports structural equality across all three fields.
func (o EngineOptions) Equal(other EngineOptions) bool {
	if o.Fen != other.Fen || len(o.Moves) != len(other.Moves) || len(o.ExtraOptions) != len(other.ExtraOptions) {
		return false
	}
	for i := range o.Moves {
		if o.Moves[i] != other.Moves[i] {
			return false
		}
	}
	for i := range o.ExtraOptions {
		if o.ExtraOptions[i] != other.ExtraOptions[i] {
			return false
		}
	}
	return true
}

// Contains reports set membership of one option pair.
func (o EngineOptions) Contains(opt EngineOption) bool {
	for _, existing := range o.ExtraOptions {
		if existing == opt {
			return true
		}
	}
	return false
}

// BestMoves is one engine line for one PV index: the scored move sequence in
// both UCI and SAN, parallel slices of equal length.
type BestMoves struct {
	Nodes    uint32    `json:"nodes"`
	Depth    uint32    `json:"depth"`
	Score    uci.Score `json:"score"`
	UCIMoves []string  `json:"uciMoves"`
	SANMoves []string  `json:"sanMoves"`
	MultiPV  uint16    `json:"multipv"`
	NPS      uint32    `json:"nps"`
}

// BestMovesPayload is one outbound analysis snapshot for the shell.
type BestMovesPayload struct {
	BestLines []BestMoves `json:"bestLines"`
	Engine    string      `json:"engine"`
	Tab       string      `json:"tab"`
	Fen       string      `json:"fen"`
	Moves     []string    `json:"moves"`
	Progress  float64     `json:"progress"`
}

// ReportProgress is the outbound progress event of a game analysis run.
type ReportProgress struct {
	Progress float64 `json:"progress"`
	ID       string  `json:"id"`
	Finished bool    `json:"finished"`
}

// MoveAnalysis is the result for one position of a game analysis: the deepest
// complete snapshot plus annotations.
type MoveAnalysis struct {
	Best        []BestMoves `json:"best"`
	Novelty     bool        `json:"novelty"`
	IsSacrifice bool        `json:"isSacrifice"`
}

// AnalysisOptions drives analyze_game.
type AnalysisOptions struct {
	Fen               string   `json:"fen"`
	Moves             []string `json:"moves"`
	AnnotateNovelties bool     `json:"annotateNovelties"`
	ReferenceDB       string   `json:"referenceDb,omitempty"`
	Reversed          bool     `json:"reversed"`
}

// EngineConfig is the identity and option list a transient engine reports
// during get_engine_config.
type EngineConfig struct {
	Name    string             `json:"name"`
	Options []uci.OptionConfig `json:"options"`
}
