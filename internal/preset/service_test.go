package preset

import (
	"encoding/json"
	"testing"
)

func TestEmbeddedDefaults_DecodeAndCoverBuiltinSet(t *testing.T) {
	var specs []defaultsSpec
	if err := json.Unmarshal(embeddedDefaults, &specs); err != nil {
		t.Fatalf("decoding embedded defaults: %v", err)
	}

	want := map[string]bool{
		"default-development": false,
		"default-staging":     false,
		"default-production":  false,
		"web-server":          false,
		"database":            false,
		"python-only":         false,
		"node-only":           false,
	}
	for _, s := range specs {
		if s.Template.Image == "" {
			t.Errorf("preset %q has no image", s.ID)
		}
		if _, ok := want[s.ID]; ok {
			want[s.ID] = true
		}
	}
	for id, found := range want {
		if !found {
			t.Errorf("builtin preset %q missing from embedded defaults", id)
		}
	}
}
