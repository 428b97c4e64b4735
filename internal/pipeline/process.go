package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dashnorm/internal"
	"dashnorm/internal/cache"
	"dashnorm/internal/config"
	"dashnorm/internal/metrics"
	"dashnorm/internal/storage"
)

type derived struct {
	Table internal.SubRecordTable
	Stats internal.NormalizeStats
}

// ProcessingService loads parent tables, normalizes them through the memo cache
// and keeps the derived tables in storage.
type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	presets map[string]Preset
	memo    *cache.Memo[derived]
	metrics *metrics.Recorder
	log     *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, log *zap.Logger, rec *metrics.Recorder) (*ProcessingService, error) {
	presets, err := LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}
	memo, err := cache.New[derived](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.New()
	}
	return &ProcessingService{db: db, cfg: cfg, presets: presets, memo: memo, metrics: rec, log: log}, nil
}

// ProcessResult describes one run. Version covers the input content, the preset
// definition and the decode options; a stored table is current only when its
// version matches.
type ProcessResult struct {
	DatasetID int
	TraceID   string
	Hash      string
	Version   string
	Preset    string
	Cached    bool
	Stored    bool
	Stats     internal.NormalizeStats
	Table     internal.SubRecordTable
}

func (s *ProcessingService) Presets() map[string]Preset {
	return s.presets
}

func (s *ProcessingService) options() Options {
	return Options{
		Delimiters: Delimiters{Primary: s.cfg.PrimaryDelimiter, Secondary: s.cfg.SecondaryDelimiter},
		Strict:     s.cfg.NormalizeStrict,
	}
}

// ProcessFile loads path and derives the preset's sub-record table from it.
func (s *ProcessingService) ProcessFile(inputType, path, presetName string) (ProcessResult, error) {
	start := time.Now()
	table, err := ExtractTableFromInput(inputType, path)
	if err != nil {
		s.metrics.ObserveFailure(presetName)
		return ProcessResult{}, fmt.Errorf("load %s: %w", path, err)
	}
	loadMs := float64(time.Since(start).Milliseconds())

	res, err := s.ProcessTable(table, inputType, path, presetName)
	if err != nil {
		return res, err
	}
	s.log.Debug("file processed", zap.String("path", path), zap.Float64("loadMs", loadMs))
	return res, nil
}

// ProcessTable normalizes an already loaded table and stores the result under datasetName.
// Unchanged content under unchanged options is served from the memo cache and
// not rewritten to storage.
func (s *ProcessingService) ProcessTable(table *internal.Table, inputType, datasetName, presetName string) (ProcessResult, error) {
	start := time.Now()
	preset, err := LookupPreset(s.presets, presetName)
	if err != nil {
		s.metrics.ObserveFailure(presetName)
		return ProcessResult{}, err
	}
	if table == nil {
		s.metrics.ObserveFailure(preset.Name)
		return ProcessResult{}, fmt.Errorf("%w: nil table", ErrInvalidArgument)
	}

	opts := s.options()
	hash := cache.HashTable(table)
	key := cache.Key(hash, preset.Name, preset.fingerprint(), opts.Delimiters.Primary, opts.Delimiters.Secondary, strconv.FormatBool(opts.Strict))
	version := cache.Fingerprint(key)

	value, cached, err := s.memo.Get(key, func() (derived, error) {
		out, stats, err := preset.Apply(table, opts)
		return derived{Table: out, Stats: stats}, err
	})
	if err != nil {
		s.metrics.ObserveFailure(preset.Name)
		s.log.Warn("normalize failed", zap.String("dataset", datasetName), zap.String("preset", preset.Name), zap.Error(err))
		return ProcessResult{}, err
	}
	normalizeMs := float64(time.Since(start).Milliseconds())

	res := ProcessResult{TraceID: uuid.NewString(), Hash: hash, Version: version, Preset: preset.Name, Cached: cached, Stats: value.Stats, Table: value.Table}

	ds, err := s.db.UpsertDataset(datasetName, inputType, hash, len(table.Rows))
	if err != nil {
		return ProcessResult{}, err
	}
	res.DatasetID = ds.ID

	storedVersion, err := s.db.GetDerivedVersion(ds.ID, preset.Name)
	if err != nil {
		return ProcessResult{}, err
	}
	if storedVersion != version {
		if err := s.db.ReplaceSubRecords(ds.ID, preset.Name, version, value.Table); err != nil {
			return ProcessResult{}, err
		}
		res.Stored = true
	}

	timings := map[string]float64{"normalizeMs": normalizeMs, "totalMs": float64(time.Since(start).Milliseconds())}
	counts := map[string]int{
		"parentRows":        value.Stats.ParentRows,
		"subRecords":        value.Stats.SubRecords,
		"partialSubRecords": value.Stats.PartialSubRecords,
		"malformedSegments": value.Stats.MalformedSegments,
		"duplicateIndices":  value.Stats.DuplicateIndices,
	}
	if err := s.db.InsertRun(res.TraceID, ds.ID, preset.Name, timings, counts); err != nil {
		s.log.Warn("run not recorded", zap.String("trace", res.TraceID), zap.Error(err))
	} else {
		_ = s.db.SetMetadata("last_run", res.TraceID)
	}
	s.metrics.ObserveRun(preset.Name, value.Stats, cached)
	hits, misses := s.memo.Stats()
	s.log.Debug("memo cache", zap.Int64("hits", hits), zap.Int64("misses", misses), zap.Int("entries", s.memo.Len()))

	s.log.Info("dataset normalized",
		zap.String("trace", res.TraceID),
		zap.String("dataset", datasetName),
		zap.String("preset", preset.Name),
		zap.String("hash", hash),
		zap.Bool("cached", cached),
		zap.Int("subRecords", value.Stats.SubRecords),
		zap.Int("anomalies", value.Stats.Anomalies()))
	return res, nil
}

// LoadStored returns the last stored derived table of a dataset.
func (s *ProcessingService) LoadStored(datasetName, presetName string) (internal.SubRecordTable, error) {
	ds, err := s.db.MustDatasetByName(datasetName)
	if err != nil {
		return internal.SubRecordTable{}, err
	}
	table, _, err := s.db.GetSubRecords(ds.ID, presetName)
	if err != nil {
		return internal.SubRecordTable{}, err
	}
	if table == nil {
		return internal.SubRecordTable{}, fmt.Errorf("no %s table stored for dataset %s", presetName, datasetName)
	}
	return *table, nil
}

// Invalidate forgets every cached result derived from the table with this hash.
func (s *ProcessingService) Invalidate(hash string) int {
	return s.memo.Invalidate(hash)
}
