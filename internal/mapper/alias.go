// Package mapper traduce payloads crudos de proveedores al modelo canónico
// (types.DailyMetric, types.Activity) usando tablas de alias.
//
// Reglas: el primer alias presente gana; un campo ausente queda nil (nunca
// 0); las unidades se convierten acá (s→h, m→km).
package mapper

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload es un JSON decodificado.
type Payload = map[string]any

// lookup resuelve un path con puntos sobre mapas anidados.
func lookup(p Payload, path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	cur := any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// number convierte v a float64 si es numérico (o string numérico).
func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// firstNumber recorre los alias en orden sobre cada payload.
func firstNumber(p Payload, aliases ...string) (float64, bool) {
	for _, a := range aliases {
		if v, ok := lookup(p, a); ok {
			if f, ok := number(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func firstString(p Payload, aliases ...string) (string, bool) {
	for _, a := range aliases {
		if v, ok := lookup(p, a); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
	}
	return "", false
}

// source es un payload con sus alias para un campo.
type source struct {
	p       Payload
	aliases []string
}

func from(p Payload, aliases ...string) source { return source{p: p, aliases: aliases} }

func pick(sources ...source) (float64, bool) {
	for _, s := range sources {
		if f, ok := firstNumber(s.p, s.aliases...); ok {
			return f, true
		}
	}
	return 0, false
}

func floatPtr(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}

func intPtr(f float64, ok bool) *int {
	if !ok {
		return nil
	}
	v := int(math.Round(f))
	return &v
}

func scaled(f float64, ok bool, div float64) (float64, bool) {
	if !ok {
		return 0, false
	}
	return f / div, true
}

// hours y km aceptan directamente el par (valor, ok) de pick/firstNumber.
func hours(seconds float64, ok bool) (float64, bool) { return scaled(seconds, ok, secondsPerHour) }

func km(meters float64, ok bool) (float64, bool) { return scaled(meters, ok, metersPerKm) }
