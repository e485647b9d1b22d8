package main

import (
	"flag"
	"fmt"
	"os"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/services"

	"github.com/sirupsen/logrus"
)

// enginecheck probes a UCI engine binary and prints its identity and option
// list, the same dialogue the server runs for get_engine_config.
func main() {
	var (
		enginePath = flag.String("engine", "", "Path to the UCI engine binary")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *enginePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -engine <path_to_engine> [-v]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if _, err := os.Stat(*enginePath); os.IsNotExist(err) {
		logrus.Fatalf("Engine binary does not exist: %s", *enginePath)
	}

	cfg := configs.Load()
	analysisService := services.NewAnalysisService(cfg, services.NewChessService(), services.NopSink{}, nil)

	config, err := analysisService.GetEngineConfig(*enginePath)
	if err != nil {
		logrus.Fatalf("Engine probe failed: %v", err)
	}

	fmt.Printf("Engine: %s\n", config.Name)
	fmt.Printf("Options (%d):\n", len(config.Options))
	for _, opt := range config.Options {
		line := fmt.Sprintf("  %-24s %-6s", opt.Name, opt.Type)
		if opt.Default != "" {
			line += fmt.Sprintf(" default=%s", opt.Default)
		}
		if opt.Min != 0 || opt.Max != 0 {
			line += fmt.Sprintf(" min=%d max=%d", opt.Min, opt.Max)
		}
		for _, v := range opt.Var {
			line += fmt.Sprintf(" var=%s", v)
		}
		fmt.Println(line)
	}
}
