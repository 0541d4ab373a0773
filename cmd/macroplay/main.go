// Package main is the entry point for macroplay.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"macroplay-go/application/playback"
	"macroplay-go/core/command"
	"macroplay-go/core/event"
	"macroplay-go/core/eventbus"
	domainmacro "macroplay-go/domain/macro"
	"macroplay-go/domain/region"
	"macroplay-go/infrastructure/capture"
	"macroplay-go/infrastructure/input"
	"macroplay-go/infrastructure/logging"
	"macroplay-go/infrastructure/ocr"
	"macroplay-go/resources"
)

func main() {
	var (
		list         = flag.Bool("list", false, "list available macros and exit")
		run          = flag.String("run", "", "name of the macro to play")
		macroDir     = flag.String("macros", "", "directory containing a macros/ folder with YAML definitions (default: bundled)")
		startIndex   = flag.Int("start", 0, "top-level action index to resume the first cycle from")
		ruLayout     = flag.Bool("ru-layout", false, "remap Cyrillic single-character keys to their US physical positions")
		noOCR        = flag.Bool("no-ocr", false, "disable OCR; text actions will fail as unavailable")
		langs        = flag.String("langs", "eng", "comma-separated Tesseract language codes")
		stopWord     = flag.String("stop-word", "", "emergency word that stops playback when seen on screen")
		stopInterval = flag.Duration("stop-interval", time.Second, "scan period for the stop word")
	)
	flag.Parse()

	logger, closeLog, err := logging.Setup(nil)
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	// Load macro definitions
	registry := domainmacro.NewRegistry()
	loader := domainmacro.NewLoader(registry)
	var macroFS fs.FS = resources.MacroFiles
	if *macroDir != "" {
		macroFS = os.DirFS(*macroDir)
	}
	if err := loader.LoadFromFS(macroFS); err != nil {
		logger.Error("Failed to load macros", "error", err)
		os.Exit(1)
	}
	logger.Info("Macros loaded", "count", registry.Len())

	if *list {
		for _, name := range registry.List() {
			m := registry.Get(name)
			fmt.Printf("%-24s %s\n", name, m.Description)
		}
		return
	}

	if *run == "" {
		flag.Usage()
		os.Exit(2)
	}
	m := registry.Get(*run)
	if m == nil {
		logger.Error("Unknown macro", "name", *run, "available", registry.List())
		os.Exit(1)
	}

	// Initialize input injection
	var injectorOpts []input.Option
	if *ruLayout {
		injectorOpts = append(injectorOpts, input.WithLayoutRemap(input.RussianLayoutRemap()))
	}
	injector := input.NewRobotInjector(injectorOpts...)

	// Initialize screen capture and OCR
	capturer := capture.NewScreenCapturer()
	var ocrClient ocr.Client
	if *noOCR {
		ocrClient = ocr.NewNoOpClient()
	} else {
		cfg := ocr.DefaultClientConfig()
		cfg.Languages = strings.Split(*langs, ",")
		ocrClient = ocr.NewTesseractClient(cfg)
		if !ocrClient.IsAvailable() {
			logger.Warn("OCR backend unavailable; text actions will fail")
		}
	}
	defer ocrClient.Close()

	// Initialize event bus
	eventBus := eventbus.New(100)
	defer eventBus.Close()
	eventBus.SubscribeMacro(m.Name, logEvents(logger))

	var stopWordConfig *playback.StopWordConfig
	if *stopWord != "" {
		stopWordConfig = &playback.StopWordConfig{
			Region:   region.Rel("stop-word", region.RelBounds{X2: 1, Y2: 1}),
			Text:     *stopWord,
			Interval: *stopInterval,
		}
	}

	player := playback.NewPlayer(playback.Config{
		Injector: injector,
		Capturer: capturer,
		OCR:      ocrClient,
		Bus:      eventBus,
		Logger:   logger,
		Matcher:  playback.DefaultMatcherConfig(),
		StopWord: stopWordConfig,
	})

	controller := playback.NewController(registry, player, logger)
	controller.Start()
	defer controller.Stop()

	if err := player.Start(m, playback.StartOptions{StartIndex: *startIndex}); err != nil {
		logger.Error("Failed to start playback", "error", err)
		os.Exit(1)
	}

	// First signal requests a stop; a second one force-exits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Stop requested")
		controller.Submit(command.NewStopPlayback(m.Name, "interrupt"))
		<-sigCh
		logger.Warn("Forced exit")
		os.Exit(1)
	}()

	<-player.Done()
	result := player.Result()
	if result.Err != nil {
		logger.Error("Playback failed", "reason", result.Reason, "error", result.Err)
		os.Exit(1)
	}
	logger.Info("Playback finished", "reason", result.Reason)
}

// logEvents bridges playback events into the log.
func logEvents(logger *slog.Logger) eventbus.EventHandler {
	return func(e event.Event) {
		switch ev := e.(type) {
		case *event.ActionStarted:
			logger.Info("Action", "index", ev.Index, "detail", ev.Detail)
		case *event.ActionFailed:
			logger.Info("Action failed", "index", ev.Index, "message", ev.Message)
		case *event.TextMatched:
			logger.Info("Text matched", "index", ev.Index, "text", ev.Text, "bounds", ev.Bounds)
		case *event.CycleStarted:
			logger.Info("Cycle", "number", ev.Cycle, "remaining", ev.Remaining)
		}
	}
}
