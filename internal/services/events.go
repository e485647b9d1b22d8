package services

import "chess-orchestrator/internal/models"

// EventSink receives the outbound event stream. The services never talk to a
// transport directly; the server wires in a websocket hub, tests wire in a
// recorder.
type EventSink interface {
	EmitBestMoves(payload models.BestMovesPayload)
	EmitReportProgress(progress models.ReportProgress)
}

// NopSink discards all events. Used where a session is driven synchronously
// and only its final state is read back.
type NopSink struct{}

func (NopSink) EmitBestMoves(models.BestMovesPayload)    {}
func (NopSink) EmitReportProgress(models.ReportProgress) {}
