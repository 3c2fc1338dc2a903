package protocol

import (
	"encoding/json"
	"testing"
)

func TestIntentSchema_ValidatesSamples(t *testing.T) {
	accept := []string{
		`{"verb":"Spawn","args":{"position":[0,0.5,0],"velocity":[0,0,0],"size":[0.5,0.5,0.5]}}`,
		`{"verb":"Spawn","args":{"position":[0,2,0],"size":[0.5,0.5,0.5],"kind":"static","tint":[0.2,0.4,0.8]}}`,
		`{"verb":"Move","args":{"id":1,"mode":"delta","delta":[0,1,0]}}`,
		`{"verb":"Move","args":{"id":7,"mode":"absolute","position":[-3,0.5,2]}}`,
		`{"verb":"ApplyForce","args":{"id":1,"force":[0,40,0]}}`,
		`{"verb":"Despawn","args":{"id":1}}`,
		`{"verb":"SetTint","args":{"id":1,"color":[1,0,0]}}`,
	}
	for _, raw := range accept {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("sample unmarshal: %v", err)
		}
		if err := intentSchema.Validate(v); err != nil {
			t.Fatalf("sample rejected: %s: %v", raw, err)
		}
	}

	reject := []string{
		`{"verb":"Spawn","args":{"size":[0.5,0.5,0.5]}}`,
		`{"verb":"Move","args":{"id":1,"mode":"teleport","position":[0,0,0]}}`,
		`{"verb":"Despawn","args":{"id":"one"}}`,
		`{"verb":"SetTint","args":{"id":1,"color":[1,0]}}`,
		`{"verb":"ApplyForce","args":{"id":1,"force":[0,0,0],"extra":true}}`,
	}
	for _, raw := range reject {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("sample unmarshal: %v", err)
		}
		if err := intentSchema.Validate(v); err == nil {
			t.Fatalf("sample accepted but should fail: %s", raw)
		}
	}
}
