package entities

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Target is one statically declared (table, source column, pointer column) triple.
type Target struct {
	Table         string `mapstructure:"table" json:"table"`
	IDColumn      string `mapstructure:"id_column" json:"id_column"`
	SourceColumn  string `mapstructure:"source_column" json:"source_column"`
	PointerColumn string `mapstructure:"pointer_column" json:"pointer_column"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s.%s", t.Table, t.SourceColumn)
}

// WithDefaults fills the conventional id and pointer column names.
func (t Target) WithDefaults() Target {
	if t.IDColumn == "" {
		t.IDColumn = "id"
	}
	if t.PointerColumn == "" {
		t.PointerColumn = "video_hls_path"
	}
	return t
}

func (t Target) Validate() error {
	for label, name := range map[string]string{
		"table":          t.Table,
		"id_column":      t.IDColumn,
		"source_column":  t.SourceColumn,
		"pointer_column": t.PointerColumn,
	} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("target %s: invalid %s %q", t, label, name)
		}
	}
	return nil
}
