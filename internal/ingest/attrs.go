package ingest

import (
	"math"
	"strconv"
)

// attrs reads GeoJSON properties under any of several accepted names.
type attrs map[string]any

func (a attrs) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := a[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (a attrs) has(keys ...string) bool {
	_, ok := a.lookup(keys...)
	return ok
}

func (a attrs) float(keys ...string) (float64, bool) {
	v, ok := a.lookup(keys...)
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (a attrs) num(keys ...string) float64 {
	v, _ := a.float(keys...)
	return v
}

func (a attrs) requiredID(keys ...string) (int64, bool) {
	v, ok := a.float(keys...)
	if !ok || v != math.Trunc(v) {
		return 0, false
	}
	return int64(v), true
}

func (a attrs) id(keys ...string) int64 {
	v, _ := a.requiredID(keys...)
	return v
}

func (a attrs) str(keys ...string) string {
	v, ok := a.lookup(keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (a attrs) flag(keys ...string) bool {
	v, ok := a.float(keys...)
	return ok && v != 0
}
