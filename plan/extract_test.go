package plan

import (
	"encoding/json"
	"testing"
)

func TestExtractPlans(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "content envelope with array text",
			raw:  `{"content":[{"type":"text","text":"[{\"id\":\"p1\",\"title\":\"A\",\"stage\":\"draft\"},{\"id\":\"p2\",\"title\":\"B\",\"stage\":\"active\"}]"}]}`,
			want: 2,
		},
		{
			name: "content envelope with plans field text",
			raw:  `{"content":[{"type":"text","text":"{\"plans\":[{\"id\":\"p1\",\"title\":\"A\",\"stage\":\"draft\"}]}"}]}`,
			want: 1,
		},
		{
			name: "content envelope skips non-plan text items",
			raw:  `{"content":[{"type":"text","text":"3 plans found"},{"type":"text","text":"[{\"id\":\"p1\",\"title\":\"A\",\"stage\":\"draft\"}]"}]}`,
			want: 1,
		},
		{
			name: "direct plans field",
			raw:  `{"plans":[{"id":"p1","title":"A","stage":"draft"}]}`,
			want: 1,
		},
		{
			name: "bare array",
			raw:  `[{"id":"p1","title":"A","stage":"draft"}]`,
			want: 1,
		},
		{
			name: "empty bare array",
			raw:  `[]`,
			want: 0,
		},
		{
			name: "empty plans field",
			raw:  `{"plans":[]}`,
			want: 0,
		},
		{
			name:    "unknown wrapper field",
			raw:     `{"items":[{"id":"p1"}]}`,
			wantErr: true,
		},
		{
			name:    "null",
			raw:     `null`,
			wantErr: true,
		},
		{
			name:    "scalar",
			raw:     `42`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans, err := extractPlans(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractPlans(%s) = %v, want error", tt.raw, plans)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractPlans(%s): %v", tt.raw, err)
			}
			if len(plans) != tt.want {
				t.Errorf("got %d plans, want %d", len(plans), tt.want)
			}
			if tt.want > 0 && plans[0].ID != "p1" {
				t.Errorf("first plan = %+v", plans[0])
			}
		})
	}
}

func TestExtractPlan(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "plan field",
			raw:  `{"plan":{"id":"p1","title":"A","stage":"draft"}}`,
		},
		{
			name: "bare object",
			raw:  `{"id":"p1","title":"A","stage":"draft"}`,
		},
		{
			name: "content envelope",
			raw:  `{"content":[{"type":"text","text":"{\"id\":\"p1\",\"title\":\"A\",\"stage\":\"draft\"}"}]}`,
		},
		{
			name:    "object without id",
			raw:     `{"title":"A"}`,
			wantErr: true,
		},
		{
			name:    "string",
			raw:     `"p1"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := extractPlan(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractPlan(%s) = %+v, want error", tt.raw, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractPlan(%s): %v", tt.raw, err)
			}
			if p.ID != "p1" || p.Title != "A" {
				t.Errorf("plan = %+v", p)
			}
		})
	}
}

func TestExtractPlan_StepsAndEvidence(t *testing.T) {
	raw := `{"plan":{"id":"p1","title":"A","stage":"active","steps":[{"id":"s1","title":"first","done":true}],"evidence":[{"id":"e1","stepId":"s1","note":"shipped"}]}}`

	p, err := extractPlan(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("extractPlan: %v", err)
	}
	if len(p.Steps) != 1 || !p.Steps[0].Done {
		t.Errorf("steps = %+v", p.Steps)
	}
	if len(p.Evidence) != 1 || p.Evidence[0].StepID != "s1" {
		t.Errorf("evidence = %+v", p.Evidence)
	}
}
