package services

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/models"
	"chess-orchestrator/pkg/uci"
)

// supervisorEngineScript speaks enough UCI to drive the whole session
// lifecycle: finite modes search to depth 2 and report a best move, infinite
// mode keeps the session running until stopped.
const supervisorEngineScript = `#!/bin/sh
while IFS= read -r line; do
  set -- $line
  case "$1" in
    uci)
      echo "id name FakeFish 1.0"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
    go)
      echo "info depth 1 multipv 1 score cp 35 nodes 100 nps 1000 pv e2e4"
      echo "info depth 2 multipv 1 score cp 40 nodes 200 nps 1000 pv e2e4 e7e5"
      if [ "$2" != "infinite" ]; then
        echo "bestmove e2e4"
      fi
      ;;
    stop)
      echo "bestmove e2e4"
      ;;
    quit)
      exit 0
      ;;
  esac
done
`

func writeTestEngine(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fakefish")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake engine: %v", err)
	}
	return path
}

func testServiceConfig() *configs.Config {
	engCfg, emitCfg := testConfigs()
	return &configs.Config{
		Engine: engCfg,
		Emit:   emitCfg,
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestGetBestMovesLifecycle(t *testing.T) {
	enginePath := writeTestEngine(t, supervisorEngineScript)
	sink := &recordingSink{}
	svc := NewEngineService(testServiceConfig(), NewChessService(), sink)
	defer svc.Shutdown()

	options := models.EngineOptions{Fen: startposFEN}
	cached, err := svc.GetBestMoves("req-1", enginePath, "tab-1", uci.GoMode{Kind: uci.GoDepth, Depth: 2}, options)
	if err != nil {
		t.Fatalf("get best moves failed: %v", err)
	}
	if cached != nil {
		t.Fatal("fresh session must take the async path")
	}

	if !waitFor(t, 3*time.Second, func() bool {
		payloads := sink.snapshot()
		return len(payloads) > 0 && payloads[len(payloads)-1].Progress == 100.0
	}) {
		t.Fatalf("never saw the final payload; got %+v", sink.snapshot())
	}

	payloads := sink.snapshot()
	var lastDepth uint32
	for _, payload := range payloads {
		if len(payload.BestLines) == 0 {
			continue
		}
		depth := payload.BestLines[0].Depth
		if depth < lastDepth {
			t.Errorf("emitted depth regressed: %d after %d", depth, lastDepth)
		}
		lastDepth = depth
	}
	if lastDepth != 2 {
		t.Errorf("expected final snapshot at depth 2, got %d", lastDepth)
	}

	final := payloads[len(payloads)-1]
	if final.Tab != "tab-1" || final.Engine != "req-1" {
		t.Errorf("payload identity wrong: %+v", final)
	}
	if final.BestLines[0].SANMoves[0] != "e4" {
		t.Errorf("expected SAN e4, got %q", final.BestLines[0].SANMoves[0])
	}
}

func TestGetBestMovesReuseAndRestart(t *testing.T) {
	enginePath := writeTestEngine(t, supervisorEngineScript)
	sink := &recordingSink{}
	svc := NewEngineService(testServiceConfig(), NewChessService(), sink)
	defer svc.Shutdown()

	options := models.EngineOptions{Fen: startposFEN}
	infinite := uci.GoMode{Kind: uci.GoInfinite}

	if _, err := svc.GetBestMoves("req-1", enginePath, "tab-1", infinite, options); err != nil {
		t.Fatalf("initial call failed: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return len(sink.snapshot()) > 0 }) {
		t.Fatal("no analysis events arrived")
	}

	// Identical request: synchronous cache hit, no new UCI traffic.
	cached, err := svc.GetBestMoves("req-2", enginePath, "tab-1", infinite, options)
	if err != nil {
		t.Fatalf("reuse call failed: %v", err)
	}
	if cached == nil {
		t.Fatal("identical request must be served from the session cache")
	}
	if len(cached.BestLines) == 0 {
		t.Error("cached result must carry the last snapshot")
	}

	goCount := 0
	for _, entry := range svc.GetEngineLogs(enginePath, "tab-1") {
		if entry.Direction == "gui" && entry.Text == "go infinite" {
			goCount++
		}
	}
	if goCount != 1 {
		t.Errorf("cache hit must not issue a new go, saw %d", goCount)
	}

	// Changed parameters: stop, drain, restart.
	cached, err = svc.GetBestMoves("req-3", enginePath, "tab-1", uci.GoMode{Kind: uci.GoDepth, Depth: 30}, options)
	if err != nil {
		t.Fatalf("restart call failed: %v", err)
	}
	if cached != nil {
		t.Fatal("parameter change must take the async path")
	}

	if !waitFor(t, 3*time.Second, func() bool {
		var sawStop, sawDeepGo bool
		for _, entry := range svc.GetEngineLogs(enginePath, "tab-1") {
			if entry.Direction != "gui" {
				continue
			}
			if entry.Text == "stop" {
				sawStop = true
			}
			if entry.Text == "go depth 30" && sawStop {
				sawDeepGo = true
			}
		}
		return sawDeepGo
	}) {
		t.Errorf("expected stop followed by go depth 30 in logs: %+v", svc.GetEngineLogs(enginePath, "tab-1"))
	}
}

func TestKillEngineRemovesSession(t *testing.T) {
	enginePath := writeTestEngine(t, supervisorEngineScript)
	sink := &recordingSink{}
	svc := NewEngineService(testServiceConfig(), NewChessService(), sink)
	defer svc.Shutdown()

	options := models.EngineOptions{Fen: startposFEN}
	if _, err := svc.GetBestMoves("req-1", enginePath, "tab-1", uci.GoMode{Kind: uci.GoInfinite}, options); err != nil {
		t.Fatalf("initial call failed: %v", err)
	}

	if len(svc.GetEngineLogs(enginePath, "tab-1")) == 0 {
		t.Fatal("expected session logs while registered")
	}

	svc.KillEngine(enginePath, "tab-1")
	if len(svc.GetEngineLogs(enginePath, "tab-1")) != 0 {
		t.Error("killed session must be gone from the registry")
	}
}

func TestKillEnginesByTab(t *testing.T) {
	enginePath := writeTestEngine(t, supervisorEngineScript)
	sink := &recordingSink{}
	svc := NewEngineService(testServiceConfig(), NewChessService(), sink)
	defer svc.Shutdown()

	options := models.EngineOptions{Fen: startposFEN}
	if _, err := svc.GetBestMoves("req-1", enginePath, "tab-a", uci.GoMode{Kind: uci.GoInfinite}, options); err != nil {
		t.Fatalf("tab-a call failed: %v", err)
	}
	if _, err := svc.GetBestMoves("req-2", enginePath, "tab-b", uci.GoMode{Kind: uci.GoInfinite}, options); err != nil {
		t.Fatalf("tab-b call failed: %v", err)
	}

	svc.KillEngines("tab-a")
	if len(svc.GetEngineLogs(enginePath, "tab-a")) != 0 {
		t.Error("tab-a session must be gone")
	}
	if len(svc.GetEngineLogs(enginePath, "tab-b")) == 0 {
		t.Error("tab-b session must survive")
	}
}

func TestSpawnFailureSurfacesCrash(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path semantics differ on windows")
	}

	sink := &recordingSink{}
	cfg := testServiceConfig()
	cfg.Engine.SpawnRetries = 2
	cfg.Engine.SpawnBackoff = 5 * time.Millisecond
	svc := NewEngineService(cfg, NewChessService(), sink)
	defer svc.Shutdown()

	_, err := svc.GetBestMoves("req-1", filepath.Join(t.TempDir(), "missing-engine"), "tab-1",
		uci.GoMode{Kind: uci.GoInfinite}, models.EngineOptions{Fen: startposFEN})
	if !errors.Is(err, models.ErrEngineCrashed) {
		t.Errorf("expected ErrEngineCrashed, got %v", err)
	}
}
