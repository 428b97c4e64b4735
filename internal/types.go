package internal

type InputType string

const (
	InputCSV  InputType = "csv"
	InputXLSX InputType = "xlsx"
	InputHTML InputType = "html"
	InputEML  InputType = "eml"
)

// Row maps a column name to its cell. A nil cell is an absent/NA value.
type Row map[string]*string

// Table is a loaded parent table. Columns is the schema; rows may omit columns.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SubRecord is one entity decoded from a parent row's packed fields.
type SubRecord struct {
	ParentRow  int
	Index      string
	Identity   map[string]*string
	Attributes map[string]*string
}

// SubRecordTable is the flat output of the normalizer. Field lists keep the
// caller's order so exports and summaries are stable.
type SubRecordTable struct {
	IdentityFields  []string
	AttributeFields []string
	Records         []SubRecord
}

// Value returns the identity or attribute value for field.
func (r SubRecord) Value(field string) *string {
	if v, ok := r.Attributes[field]; ok {
		return v
	}
	return r.Identity[field]
}

type NormalizeStats struct {
	ParentRows          int
	ContributingParents int
	SubRecords          int
	PartialSubRecords   int
	Segments            int
	MalformedSegments   int
	DuplicateIndices    int
}

func (s NormalizeStats) Anomalies() int {
	return s.MalformedSegments + s.DuplicateIndices
}

type DatasetRow struct {
	ID        int
	Name      string
	InputType string
	Hash      string
	Rows      int
	LoadedAt  string
}

type RunRow struct {
	ID        int
	TraceID   string
	DatasetID int
	Preset    string
	Timings   map[string]float64
	Counts    map[string]int
	CreatedAt string
}
