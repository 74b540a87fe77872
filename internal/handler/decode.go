package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// looseString принимает строку, число, булево значение или null.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*s = looseString(strconv.FormatBool(t))
	case float64:
		*s = looseString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("expected scalar value, got %s", data)
	}
	return nil
}

// stringList принимает массив значений или строку через запятую.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if len(data) > 0 && data[0] == '[' {
		var items []looseString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, string(it))
		}
		*l = out
		return nil
	}

	var single looseString
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if strings.TrimSpace(string(single)) == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(string(single), ",")
	return nil
}

// looseAmount принимает сумму числом или строкой.
type looseAmount float64

func (a *looseAmount) UnmarshalJSON(data []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Errorf("amount %q is not a finite number", raw)
	}
	*a = looseAmount(v)
	return nil
}

// firstNonEmpty возвращает первое непустое после обрезки пробелов значение.
func firstNonEmpty(values ...looseString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}
