package preset

import "testing"

func TestFiltersMatches(t *testing.T) {
	version1 := 1
	p := Preset{
		ID:      "default-development",
		Name:    "Development",
		Version: 1,
		Labels:  map[string]string{"tier": "dev"},
	}

	tests := []struct {
		name string
		f    Filters
		want bool
	}{
		{"empty filter matches everything", Filters{}, true},
		{"name match", Filters{Name: "Development"}, true},
		{"name mismatch", Filters{Name: "Production"}, false},
		{"version match", Filters{Version: &version1}, true},
		{"label match", Filters{Labels: map[string]string{"tier": "dev"}}, true},
		{"label mismatch", Filters{Labels: map[string]string{"tier": "prod"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.matches(p); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeploymentName(t *testing.T) {
	p := Preset{ID: "default-development"}
	if got, want := p.DeploymentName(), "preset-default-development"; got != want {
		t.Errorf("DeploymentName() = %q, want %q", got, want)
	}
}
