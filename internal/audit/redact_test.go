package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	out := Redact(map[string]any{
		"name":         "Widget",
		"Password":     "hunter2",
		"access_token": "eyJ...",
		"payment": map[string]any{
			"card_number": "4111111111111111",
			"amount":      1200,
		},
		"items": []any{map[string]any{"api_key": "k", "sku": "A1"}},
	})
	for _, leaked := range []string{"hunter2", "eyJ", "4111", `"k"`} {
		if strings.Contains(out, leaked) {
			t.Errorf("redacted metadata leaks %q: %s", leaked, out)
		}
	}
	var back map[string]any
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if back["name"] != "Widget" {
		t.Errorf("non-sensitive values are kept: %v", back)
	}
	if back["payment"].(map[string]any)["amount"] != float64(1200) {
		t.Errorf("nested non-sensitive values are kept: %v", back)
	}
}

func TestRedact_Empty(t *testing.T) {
	if got := Redact(nil); got != "{}" {
		t.Errorf("Redact(nil) = %s", got)
	}
}
