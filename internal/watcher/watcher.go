package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"dashnorm/internal/config"
	"dashnorm/internal/pipeline"
)

// Processor is the part of pipeline.ProcessingService the watcher drives.
type Processor interface {
	ProcessFile(inputType, path, presetName string) (pipeline.ProcessResult, error)
}

// Service re-derives the configured input whenever it changes on disk.
type Service struct {
	proc Processor
	cfg  config.Config
	log  *zap.Logger

	lastMod    time.Time
	lastSize   int64
	lastExport string
}

func NewService(proc Processor, cfg config.Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{proc: proc, cfg: cfg, log: log}
}

// Run processes the input once, then again after every settled change. File
// events are debounced; a periodic rescan catches changes fsnotify missed.
// It returns nil when ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	input := strings.TrimSpace(s.cfg.WatchInput)
	if input == "" {
		return errors.New("WATCH_INPUT is not set")
	}
	input, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(input)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(input), err)
	}

	interval := time.Duration(max(s.cfg.WatchIntervalSec, 1)) * time.Second
	rescan := time.NewTicker(interval)
	defer rescan.Stop()

	debounceDur := time.Duration(max(s.cfg.WatchDebounceMs, 0)) * time.Millisecond
	debounce := time.NewTimer(debounceDur)
	debounce.Stop()
	defer debounce.Stop()

	s.runCycle(input)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != input {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(debounceDur)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", zap.Error(err))
		case <-debounce.C:
			s.runCycle(input)
		case <-rescan.C:
			if s.changed(input) {
				s.runCycle(input)
			}
		}
	}
}

func (s *Service) changed(input string) bool {
	info, err := os.Stat(input)
	if err != nil {
		return false
	}
	return !info.ModTime().Equal(s.lastMod) || info.Size() != s.lastSize
}

func (s *Service) runCycle(input string) {
	if info, err := os.Stat(input); err == nil {
		s.lastMod, s.lastSize = info.ModTime(), info.Size()
	}

	inputType := strings.TrimSpace(s.cfg.WatchInputType)
	if inputType == "" {
		inputType = pipeline.InputTypeFromPath(input)
	}
	res, err := s.proc.ProcessFile(inputType, input, s.cfg.WatchPreset)
	if err != nil {
		s.log.Error("watch cycle failed", zap.String("input", input), zap.Error(err))
		return
	}

	// A memo hit can still differ from the last export, e.g. after a revert.
	if s.cfg.WatchAutoExport && (res.Version == "" || res.Version != s.lastExport) {
		out := exportPath(s.cfg.OutputDir, input, res.Preset)
		if err := pipeline.ExportSubRecordsToXLSX(res.Table, out); err != nil {
			s.log.Error("watch export failed", zap.String("output", out), zap.Error(err))
			return
		}
		s.lastExport = res.Version
		s.log.Info("exported", zap.String("output", out), zap.Int("subRecords", len(res.Table.Records)))
	}

	s.log.Info("watch cycle done",
		zap.String("input", input),
		zap.String("preset", res.Preset),
		zap.Bool("cached", res.Cached),
		zap.Bool("stored", res.Stored),
		zap.Int("subRecords", res.Stats.SubRecords))
}

func exportPath(outputDir, input, preset string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	repl := strings.NewReplacer(" ", "_", ":", "_", "|", "_", "?", "_", "*", "_")
	return filepath.Join(outputDir, "watch", repl.Replace(base)+"_"+preset+".xlsx")
}
