package pipeline

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"dashnorm/internal"
	"dashnorm/internal/cache"
)

type PresetField struct {
	Source  string            `yaml:"source"`
	Name    string            `yaml:"name"`
	Kind    CleanKind         `yaml:"kind"`
	Replace map[string]string `yaml:"replace"`
}

func (f PresetField) outputName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Source
}

func isReservedColumn(name string) bool {
	return slices.Contains(reservedExportColumns, strings.TrimSpace(name))
}

type DeriveYear struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Preset binds a packed-column layout to the identity columns copied onto each sub-record.
type Preset struct {
	Name           string        `yaml:"name"`
	IdentityFields []string      `yaml:"identity_fields"`
	Fields         []PresetField `yaml:"fields"`
	DeriveYear     *DeriveYear   `yaml:"derive_year"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

func (p Preset) PackedFields() []string {
	out := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		out = append(out, f.Source)
	}
	return out
}

func (p Preset) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: preset without name", ErrInvalidArgument)
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("%w: preset %s has no fields", ErrInvalidArgument, p.Name)
	}
	for _, name := range p.IdentityFields {
		if isReservedColumn(name) {
			return fmt.Errorf("%w: preset %s: identity field %q clashes with an export column", ErrInvalidArgument, p.Name, name)
		}
	}
	for _, f := range p.Fields {
		switch f.Kind {
		case "", CleanRaw, CleanCategory, CleanInteger:
		default:
			return fmt.Errorf("%w: preset %s field %s: unknown kind %q", ErrInvalidArgument, p.Name, f.Source, f.Kind)
		}
		if isReservedColumn(f.outputName()) {
			return fmt.Errorf("%w: preset %s field %s: name %q clashes with an export column", ErrInvalidArgument, p.Name, f.Source, f.outputName())
		}
	}
	return nil
}

// fingerprint identifies the preset definition, so results derived under an
// edited preset of the same name are told apart.
func (p Preset) fingerprint() string {
	blob, err := yaml.Marshal(p)
	if err != nil {
		return p.Name
	}
	return cache.Fingerprint(string(blob))
}

// Apply derives the year column when configured, normalizes the packed fields,
// then renames and cleans the attributes.
func (p Preset) Apply(table *internal.Table, opts Options) (internal.SubRecordTable, internal.NormalizeStats, error) {
	if err := p.validate(); err != nil {
		return internal.SubRecordTable{}, internal.NormalizeStats{}, err
	}
	if table != nil && p.DeriveYear != nil {
		table = WithYear(table, p.DeriveYear.From, p.DeriveYear.To)
	}

	out, stats, err := Normalize(table, p.PackedFields(), p.IdentityFields, opts)
	if err != nil {
		return out, stats, fmt.Errorf("preset %s: %w", p.Name, err)
	}

	rules := map[string]FieldCleanup{}
	names := map[string]string{}
	for _, f := range p.Fields {
		if (f.Kind != "" && f.Kind != CleanRaw) || len(f.Replace) > 0 {
			rules[f.Source] = FieldCleanup{Kind: f.Kind, Replace: f.Replace}
		}
		if f.Name != "" && f.Name != f.Source {
			names[f.Source] = f.Name
		}
	}
	CleanSubRecords(&out, rules)
	RenameAttributes(&out, names)
	return out, stats, nil
}

var builtinPresets = []Preset{
	{
		Name:           "participants",
		IdentityFields: []string{"incident_id", "state", "year"},
		DeriveYear:     &DeriveYear{From: "date", To: "year"},
		Fields: []PresetField{
			{Source: "participant_age", Name: "age", Kind: CleanInteger},
			{Source: "participant_age_group", Name: "age_group"},
			{Source: "participant_gender", Name: "gender", Kind: CleanCategory},
			{Source: "participant_type", Name: "participant_type", Kind: CleanRaw, Replace: map[string]string{"Subject-Suspect": "Suspect"}},
			{Source: "participant_status", Name: "status"},
			{Source: "participant_relationship", Name: "relationship"},
		},
	},
	{
		Name:           "guns",
		IdentityFields: []string{"incident_id", "state", "year"},
		DeriveYear:     &DeriveYear{From: "date", To: "year"},
		Fields: []PresetField{
			{Source: "gun_type", Name: "gun_type"},
			{Source: "gun_stolen", Name: "gun_stolen"},
		},
	},
}

// LoadPresets returns the built-in presets, overridden or extended by the YAML file at path.
func LoadPresets(path string) (map[string]Preset, error) {
	out := make(map[string]Preset, len(builtinPresets))
	for _, p := range builtinPresets {
		out[p.Name] = p
	}
	if strings.TrimSpace(path) == "" {
		return out, nil
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var file presetFile
	if err := yaml.Unmarshal(blob, &file); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	for _, p := range file.Presets {
		if err := p.validate(); err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

func PresetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupPreset(presets map[string]Preset, name string) (Preset, error) {
	p, ok := presets[strings.TrimSpace(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: unknown preset %q (have %s)", ErrInvalidArgument, name, strings.Join(PresetNames(presets), ", "))
	}
	return p, nil
}
