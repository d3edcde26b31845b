package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// marshalAttrs converts stored attributes to JSON TEXT.
// json.Marshal sorts map keys, so equal attribute sets produce equal text.
func marshalAttrs(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(attrs); err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalAttrs parses attributes, keeping numbers as json.Number so
// decimals survive without float rounding.
func unmarshalAttrs(data string) (map[string]any, error) {
	attrs := make(map[string]any)
	if data == "" {
		return attrs, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return attrs, nil
}

func formatTime(t time.Time) string {
	return ir.FormatStoreTime(t)
}

func parseTime(column, s string) (time.Time, error) {
	t, err := ir.ParseStoreTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", column, err)
	}
	return t, nil
}
