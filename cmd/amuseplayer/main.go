// Package main provides a standalone amuse-engine demo player: it loads a
// group bundle and an optional song file, drives the engine's 5ms
// scheduler tick, and plays back audio through the ebiten backend.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/amuse-engine/pkg/amuse/backend"
	"github.com/opd-ai/amuse-engine/pkg/amuse/engine"
	"github.com/opd-ai/amuse-engine/pkg/amuse/group"
	"github.com/opd-ai/amuse-engine/pkg/config"
	"github.com/opd-ai/amuse-engine/pkg/debugserver"
)

var (
	projPath   = flag.String("proj", "", "Path to the group's .proj file")
	poolPath   = flag.String("pool", "", "Path to the group's .pool file")
	sdirPath   = flag.String("sdir", "", "Path to the group's .sdir file")
	sampPath   = flag.String("samp", "", "Path to the group's .samp file")
	format     = flag.String("format", "pc", "Sample data format: gcn, n64, or pc")
	songPath   = flag.String("song", "", "Path to a song file to play within the group (optional)")
	sfxID      = flag.Int("sfx", -1, "SFX object ID to start instead of playing a song (optional)")
	debugAddr  = flag.String("debug-addr", "", "If set, serve a read-only websocket snapshot feed at this address")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	sampleRate = flag.Int("sample-rate", 32000, "Sample rate in Hz for the ebiten backend")
)

func readFile(log *logrus.Logger, path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Fatal("failed to read file")
	}
	return data
}

func parseFormat(s string) group.DataFormat {
	switch s {
	case "gcn":
		return group.GCN
	case "n64":
		return group.N64
	default:
		return group.PC
	}
}

func main() {
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := config.Load(); err != nil {
		log.WithError(err).Warn("failed to load config, using defaults")
	}
	cfg := config.Get()

	ampMode := engine.AmplitudeLinear
	if cfg.AmplitudeMode == "percent" {
		ampMode = engine.AmplitudePerCent
	}

	if *projPath == "" || *poolPath == "" || *sdirPath == "" || *sampPath == "" {
		log.Fatal("-proj, -pool, -sdir, and -samp are all required")
	}

	data := &group.Data{
		Proj:   readFile(log, *projPath),
		Pool:   readFile(log, *poolPath),
		Sdir:   readFile(log, *sdirPath),
		Samp:   readFile(log, *sampPath),
		Format: parseFormat(*format),
	}

	b := backend.NewEbitenBackend(*sampleRate)
	eng := engine.New(b, ampMode, log)

	g, err := eng.AddAudioGroup(data)
	if err != nil {
		log.WithError(err).Fatal("failed to decode audio group")
	}
	log.WithField("groupID", 0).Info("audio group loaded")

	if *debugAddr != "" {
		dbg := debugserver.New(eng, time.Duration(cfg.MIDICoalesceMS*float64(time.Millisecond))+50*time.Millisecond, 60, log)
		if err := dbg.Start(*debugAddr); err != nil {
			log.WithError(err).Fatal("failed to start debug server")
		}
		defer dbg.Stop()
		log.WithField("addr", dbg.Addr()).Info("debug snapshot server listening")
	}

	var songData []byte
	if *songPath != "" {
		songData, err = os.ReadFile(*songPath)
		if err != nil {
			log.WithError(err).Fatal("failed to read song file")
		}
	}

	switch {
	case *sfxID >= 0:
		v := eng.FxStart(uint16(*sfxID), 1.0, 0.0, eng.DefaultStudio())
		if v == nil {
			log.Fatal("fxStart: unknown sfx id")
		}
		log.WithField("sfxID", *sfxID).Info("sfx started")
	case songData != nil:
		for groupID := range g.Proj.SongGroups {
			eng.SeqPlay(g, groupID, songData, eng.DefaultStudio())
			break
		}
		log.Info("song playback started")
	default:
		log.Info("no -song or -sfx given; engine running idle")
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("engine running, press Ctrl+C to stop")
	for {
		select {
		case <-ticker.C:
			eng.PumpEngine()
		case <-sigChan:
			log.Info("shutdown signal received, stopping")
			return
		}
	}
}
