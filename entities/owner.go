package entities

// OwningRecord identifies the row that references a source video and receives the pointer update.
type OwningRecord struct {
	Table         string  `json:"table"`
	IDColumn      string  `json:"id_column"`
	SourceColumn  string  `json:"source_column"`
	PointerColumn string  `json:"pointer_column"`
	RowID         string  `json:"row_id"`
	SourceValue   string  `json:"source_value"`
	Pointer       *string `json:"pointer,omitempty"`
}

func (o OwningRecord) Target() Target {
	return Target{
		Table:         o.Table,
		IDColumn:      o.IDColumn,
		SourceColumn:  o.SourceColumn,
		PointerColumn: o.PointerColumn,
	}
}

func (o OwningRecord) CurrentPointer() string {
	if o.Pointer == nil {
		return ""
	}
	return *o.Pointer
}
