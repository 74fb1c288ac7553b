package server

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/store"
)

// request is a decoded structpb.Struct with typed accessors. Accessors record the first
// type mismatch; callers check err once after reading every field.
type request struct {
	m   map[string]any
	err error
}

func decode(in *structpb.Struct) *request {
	if in == nil {
		return &request{m: map[string]any{}}
	}
	return &request{m: in.AsMap()}
}

func (r *request) fail(key, want string) {
	if r.err == nil {
		r.err = apperr.Validation("bad_request", fmt.Sprintf("%s must be %s", key, want))
	}
}

func (r *request) str(key string) string {
	v, ok := r.m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "a string")
	}
	return s
}

func (r *request) integer(key string) int {
	v, ok := r.m[key]
	if !ok || v == nil {
		return 0
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		r.fail(key, "a non-negative integer")
		return 0
	}
	return int(f)
}

func (r *request) boolean(key string) bool {
	v, ok := r.m[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, "a boolean")
	}
	return b
}

func (r *request) object(key string) map[string]any {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	o, ok := v.(map[string]any)
	if !ok {
		r.fail(key, "an object")
	}
	return o
}

func (r *request) list(key string) []any {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		r.fail(key, "a list")
	}
	return l
}

// columns converts wire values to engine values: JSON numbers that are whole become int64.
func columns(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}

// wire converts an engine value to something structpb accepts.
func wire(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case int:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = wire(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = wire(e)
		}
		return out
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func rowValue(r store.Row) any {
	if r == nil {
		return nil
	}
	return wire(map[string]any(r))
}

func rowsValue(rows []store.Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = rowValue(r)
	}
	return out
}

func encode(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}
