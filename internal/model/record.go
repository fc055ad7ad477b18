package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Columns holds the attachment columns of a record: file values and the
// metadata mapped next to them.
type Columns map[string]any

func (c Columns) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode columns: %w", err)
	}
	return string(b), nil
}

func (c *Columns) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = Columns{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported columns type %T", src)
	}

	out := Columns{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode columns: %w", err)
	}
	*c = out
	return nil
}

// CopiesColumn holds, per file column, the reference from every transporter
// the file was pushed to.
const CopiesColumn = "_copies"

// Copies returns the per-transporter references stored for col.
func (c Columns) Copies(col string) []string {
	return c.copies()[col]
}

// SetCopies replaces the references stored for col. Empty refs remove them.
func (c Columns) SetCopies(col string, refs []string) {
	all := c.copies()
	if len(refs) == 0 {
		delete(all, col)
	} else {
		all[col] = slices.Clone(refs)
	}

	if len(all) == 0 {
		delete(c, CopiesColumn)
		return
	}
	c[CopiesColumn] = all
}

// copies returns a fresh map whether the column was set in memory or decoded from JSON.
func (c Columns) copies() map[string][]string {
	out := map[string][]string{}
	switch v := c[CopiesColumn].(type) {
	case map[string][]string:
		for col, refs := range v {
			out[col] = slices.Clone(refs)
		}
	case map[string]any:
		for col, raw := range v {
			list, ok := raw.([]any)
			if !ok {
				continue
			}
			refs := make([]string, 0, len(list))
			for _, r := range list {
				s, _ := r.(string)
				refs = append(refs, s)
			}
			out[col] = refs
		}
	}
	return out
}

// String returns the column as a string, or "" when it is unset or not a string.
func (c Columns) String(name string) string {
	s, _ := c[name].(string)
	return s
}

type Record struct {
	ID        string    `db:"id" json:"id"`
	Model     string    `db:"model" json:"model"`
	Columns   Columns   `db:"columns" json:"columns"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
