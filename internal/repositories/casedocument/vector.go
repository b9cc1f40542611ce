package casedocument

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector is a pgvector value. It is sent and read in the text form [1,2,3].
type Vector []float64

// Value renders the vector literal, or NULL for an empty vector
func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

func (v *Vector) Scan(src any) error {
	var text string
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		text = string(s)
	case string:
		text = s
	default:
		return fmt.Errorf("cannot scan %T into a vector", src)
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return fmt.Errorf("invalid vector literal %q", text)
	}
	text = strings.TrimSpace(text[1 : len(text)-1])
	if text == "" {
		*v = Vector{}
		return nil
	}

	items := strings.Split(text, ",")
	out := make(Vector, len(items))
	for i, item := range items {
		f, err := strconv.ParseFloat(strings.TrimSpace(item), 32)
		if err != nil {
			return fmt.Errorf("invalid vector element %q: %w", item, err)
		}
		out[i] = f
	}
	*v = out
	return nil
}
