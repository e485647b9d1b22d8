package uci

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageKind tags a parsed engine-to-GUI line.
type MessageKind int

const (
	MsgUnknown MessageKind = iota
	MsgIDName
	MsgOption
	MsgUciOk
	MsgReadyOk
	MsgInfo
	MsgBestMove
)

// Message is one parsed line of engine output.
type Message struct {
	Kind     MessageKind
	Name     string // id name
	Option   OptionConfig
	Info     Info
	BestMove string
	Ponder   string
}

// Info carries the attributes of an "info" line that this core consumes.
// Attributes the engine did not send are left at their zero value, except
// MultiPV which defaults to 1.
type Info struct {
	Depth   uint32
	MultiPV uint16
	Score   *Score
	Nodes   uint64
	NPS     uint32
	PV      []string
	HasPV   bool
}

// Score is an engine evaluation, either centipawns or mate-in-N, reported
// from the side-to-move's perspective. WDL, when present, is in permille.
type Score struct {
	Type  string `json:"type"` // "cp" or "mate"
	Value int32  `json:"value"`
	WDL   *WDL   `json:"wdl,omitempty"`
}

// WDL is a win/draw/loss triple in permille.
type WDL struct {
	Win  uint16 `json:"win"`
	Draw uint16 `json:"draw"`
	Loss uint16 `json:"loss"`
}

// Invert flips a score to the other side's perspective.
func (s Score) Invert() Score {
	inv := Score{Type: s.Type, Value: -s.Value}
	if s.WDL != nil {
		inv.WDL = &WDL{Win: s.WDL.Loss, Draw: s.WDL.Draw, Loss: s.WDL.Win}
	}
	return inv
}

// OptionConfig describes one "option" line advertised by an engine.
type OptionConfig struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Default string   `json:"default,omitempty"`
	Min     int      `json:"min,omitempty"`
	Max     int      `json:"max,omitempty"`
	Var     []string `json:"var,omitempty"`
}

// GoKind selects how the engine bounds its search.
type GoKind string

const (
	GoDepth       GoKind = "depth"
	GoTime        GoKind = "time"
	GoNodes       GoKind = "nodes"
	GoPlayersTime GoKind = "playersTime"
	GoInfinite    GoKind = "infinite"
)

// GoMode is the search bound for one "go" command. Only the fields relevant
// to Kind are meaningful; the struct is comparable so cached sessions can be
// matched with ==.
type GoMode struct {
	Kind   GoKind `json:"t"`
	Depth  uint32 `json:"depth,omitempty"`
	TimeMs uint32 `json:"timeMs,omitempty"`
	Nodes  uint64 `json:"nodes,omitempty"`
	WTime  uint32 `json:"wtime,omitempty"`
	BTime  uint32 `json:"btime,omitempty"`
	WInc   uint32 `json:"winc,omitempty"`
	BInc   uint32 `json:"binc,omitempty"`
}

// Outbound commands. Every command is newline-terminated so it can be handed
// to Process.Send as-is.
const (
	CommandUci     = "uci\n"
	CommandIsReady = "isready\n"
	CommandStop    = "stop\n"
	CommandQuit    = "quit\n"
)

// CommandSetOption formats a setoption command.
func CommandSetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s\n", name, value)
}

// CommandPosition formats a position command from a FEN and a move list.
func CommandPosition(fen string, moves []string) string {
	if len(moves) == 0 {
		return fmt.Sprintf("position fen %s\n", fen)
	}
	return fmt.Sprintf("position fen %s moves %s\n", fen, strings.Join(moves, " "))
}

// CommandGo formats a go command for the given mode.
func CommandGo(mode GoMode) string {
	switch mode.Kind {
	case GoDepth:
		return fmt.Sprintf("go depth %d\n", mode.Depth)
	case GoTime:
		return fmt.Sprintf("go movetime %d\n", mode.TimeMs)
	case GoNodes:
		return fmt.Sprintf("go nodes %d\n", mode.Nodes)
	case GoPlayersTime:
		return fmt.Sprintf("go wtime %d btime %d winc %d binc %d\n",
			mode.WTime, mode.BTime, mode.WInc, mode.BInc)
	default:
		return "go infinite\n"
	}
}

// ParseLine parses one inbound line into a tagged message. Lines that are not
// part of the protocol subset this core consumes come back as MsgUnknown; the
// caller logs and ignores them.
func ParseLine(line string) Message {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{Kind: MsgUnknown}
	}

	switch fields[0] {
	case "uciok":
		return Message{Kind: MsgUciOk}
	case "readyok":
		return Message{Kind: MsgReadyOk}
	case "id":
		if len(fields) >= 3 && fields[1] == "name" {
			return Message{Kind: MsgIDName, Name: strings.Join(fields[2:], " ")}
		}
	case "option":
		if opt, ok := parseOptionConfig(fields[1:]); ok {
			return Message{Kind: MsgOption, Option: opt}
		}
	case "info":
		return Message{Kind: MsgInfo, Info: parseInfoAttrs(fields[1:])}
	case "bestmove":
		msg := Message{Kind: MsgBestMove}
		if len(fields) >= 2 {
			msg.BestMove = fields[1]
		}
		if len(fields) >= 4 && fields[2] == "ponder" {
			msg.Ponder = fields[3]
		}
		return msg
	}

	return Message{Kind: MsgUnknown}
}

// parseInfoAttrs scans the attributes of an info line. Attributes this core
// does not consume (seldepth, hashfull, currmove, ...) are skipped without
// failing the line.
func parseInfoAttrs(fields []string) Info {
	info := Info{MultiPV: 1}

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if v, ok := nextUint(fields, i); ok {
				info.Depth = uint32(v)
				i++
			}
		case "multipv":
			if v, ok := nextUint(fields, i); ok {
				info.MultiPV = uint16(v)
				i++
			}
		case "nodes":
			if v, ok := nextUint(fields, i); ok {
				info.Nodes = v
				i++
			}
		case "nps":
			if v, ok := nextUint(fields, i); ok {
				info.NPS = uint32(v)
				i++
			}
		case "score":
			score, consumed := parseScore(fields[i+1:])
			if score != nil {
				info.Score = score
			}
			i += consumed
		case "pv":
			// The PV runs to the end of the line or the next keyword;
			// well-behaved engines put it last.
			info.HasPV = true
			for j := i + 1; j < len(fields); j++ {
				if isInfoKeyword(fields[j]) {
					i = j - 1
					break
				}
				info.PV = append(info.PV, fields[j])
				i = j
			}
		}
	}

	return info
}

// parseScore consumes "cp <n>" or "mate <n>", optionally followed by
// "wdl <w> <d> <l>", plus any bound markers. Returns the score (nil if the
// tokens are malformed) and how many tokens were consumed.
func parseScore(fields []string) (*Score, int) {
	if len(fields) < 2 {
		return nil, 0
	}

	var score *Score
	consumed := 0

	switch fields[0] {
	case "cp", "mate":
		v, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, 0
		}
		score = &Score{Type: fields[0], Value: int32(v)}
		consumed = 2
	default:
		return nil, 0
	}

	// Skip lowerbound/upperbound markers between value and wdl.
	for consumed < len(fields) && (fields[consumed] == "lowerbound" || fields[consumed] == "upperbound") {
		consumed++
	}

	if consumed+3 < len(fields) && fields[consumed] == "wdl" {
		w, errW := strconv.ParseUint(fields[consumed+1], 10, 16)
		d, errD := strconv.ParseUint(fields[consumed+2], 10, 16)
		l, errL := strconv.ParseUint(fields[consumed+3], 10, 16)
		if errW == nil && errD == nil && errL == nil {
			score.WDL = &WDL{Win: uint16(w), Draw: uint16(d), Loss: uint16(l)}
			consumed += 4
		}
	}

	return score, consumed
}

// parseOptionConfig parses the tail of an "option" line, e.g.
// "name Hash type spin default 16 min 1 max 33554432". Option names may
// contain spaces, so the name runs from "name" to "type".
func parseOptionConfig(fields []string) (OptionConfig, bool) {
	var opt OptionConfig
	if len(fields) == 0 || fields[0] != "name" {
		return opt, false
	}

	i := 1
	var name []string
	for ; i < len(fields) && fields[i] != "type"; i++ {
		name = append(name, fields[i])
	}
	if len(name) == 0 || i >= len(fields)-1 {
		return opt, false
	}
	opt.Name = strings.Join(name, " ")
	opt.Type = fields[i+1]
	i += 2

	for ; i < len(fields); i++ {
		switch fields[i] {
		case "default":
			// A combo/string default may itself contain spaces.
			var def []string
			for j := i + 1; j < len(fields) && !isOptionKeyword(fields[j]); j++ {
				def = append(def, fields[j])
				i = j
			}
			opt.Default = strings.Join(def, " ")
		case "min":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					opt.Min = v
					i++
				}
			}
		case "max":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					opt.Max = v
					i++
				}
			}
		case "var":
			if i+1 < len(fields) {
				opt.Var = append(opt.Var, fields[i+1])
				i++
			}
		}
	}

	return opt, true
}

func nextUint(fields []string, i int) (uint64, bool) {
	if i+1 >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[i+1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isInfoKeyword(s string) bool {
	switch s {
	case "depth", "seldepth", "time", "nodes", "pv", "multipv", "score",
		"cp", "mate", "nps", "hashfull", "tbhits", "currmove", "currmovenumber", "wdl":
		return true
	}
	return false
}

func isOptionKeyword(s string) bool {
	switch s {
	case "name", "type", "default", "min", "max", "var":
		return true
	}
	return false
}
