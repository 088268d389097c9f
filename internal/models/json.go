package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSON is a datatypes.JSON column whose SQL type follows the dialect.
type JSON struct {
	datatypes.JSON
}

func (j JSON) Value() (driver.Value, error) {
	return j.JSON.Value()
}

func (j *JSON) Scan(value interface{}) error {
	return j.JSON.Scan(value)
}

// GormDBDataType maps the column per driver; SQL Server has no JSON type.
func (JSON) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "JSON"
	}
	return "TEXT"
}

// NewStringSet encodes values as a sorted, de-duplicated JSON array.
// An empty set encodes as SQL NULL.
func NewStringSet(values []string) JSON {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return JSON{}
	}
	sort.Strings(out)
	raw, _ := json.Marshal(out)
	return JSON{JSON: datatypes.JSON(raw)}
}

// Strings decodes a JSON array of strings. Malformed or empty values decode to nil.
func (j JSON) Strings() []string {
	if len(j.JSON) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(j.JSON, &out); err != nil {
		return nil
	}
	return out
}
