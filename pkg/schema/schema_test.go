package schema

import (
	"os"
	"testing"
)

func loadCatalog(t *testing.T) Catalog {
	t.Helper()
	data, err := os.ReadFile("testdata/object_info.json")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestParseKeepsInputOrder(t *testing.T) {
	c := loadCatalog(t)

	ks, ok := c.Lookup("KSampler")
	if !ok {
		t.Fatal("KSampler missing from catalog")
	}
	want := []string{"model", "seed", "steps", "cfg", "sampler_name", "scheduler", "positive", "negative", "latent_image", "denoise"}
	if len(ks.Input.Required) != len(want) {
		t.Fatalf("required inputs = %d, want %d", len(ks.Input.Required), len(want))
	}
	for i, name := range want {
		if got := ks.Input.Required[i].Name; got != name {
			t.Errorf("input[%d] = %s, want %s", i, got, name)
		}
	}
}

func TestParseTypes(t *testing.T) {
	c := loadCatalog(t)
	ks := c["KSampler"]

	tests := []struct {
		input       string
		wantType    string
		wantChoices int
	}{
		{"model", "MODEL", 0},
		{"seed", TypeInt, 0},
		{"sampler_name", TypeCombo, 3},
		{"scheduler", TypeCombo, 2},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var in *Input
			for i := range ks.Input.Required {
				if ks.Input.Required[i].Name == tt.input {
					in = &ks.Input.Required[i]
				}
			}
			if in == nil {
				t.Fatalf("input %s not found", tt.input)
			}
			if in.Type.Name != tt.wantType {
				t.Errorf("type = %s, want %s", in.Type.Name, tt.wantType)
			}
			if len(in.Type.Choices) != tt.wantChoices {
				t.Errorf("choices = %d, want %d", len(in.Type.Choices), tt.wantChoices)
			}
		})
	}

	if len(c["CheckpointLoaderSimple"].Output) != 3 {
		t.Errorf("checkpoint outputs = %d, want 3", len(c["CheckpointLoaderSimple"].Output))
	}
}

func TestParseFillsMissingName(t *testing.T) {
	c, err := Parse([]byte(`{"Note": {"input": {"required": {"text": ["STRING"]}}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c["Note"].Name != "Note" {
		t.Errorf("Name = %q, want Note", c["Note"].Name)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte(`[1, 2, 3]`)); err == nil {
		t.Error("Parse of array should fail")
	}
	if _, err := Parse([]byte(`{"X": {"input": {"required": {"a": "INT"}}}}`)); err == nil {
		t.Error("Parse of non-array input spec should fail")
	}
}

func TestWidgetsFor(t *testing.T) {
	c := loadCatalog(t)

	tests := []struct {
		nodeType string
		want     []string
	}{
		{"CheckpointLoaderSimple", []string{"ckpt_name"}},
		{"KSampler", []string{"seed", ControlWidget, "steps", "cfg", "sampler_name", "scheduler", "denoise"}},
		{"SaveImage", []string{"filename_prefix", "overwrite"}},
	}
	for _, tt := range tests {
		t.Run(tt.nodeType, func(t *testing.T) {
			widgets := WidgetsFor(c[tt.nodeType])
			if len(widgets) != len(tt.want) {
				t.Fatalf("widgets = %v, want %v", widgets, tt.want)
			}
			for i, name := range tt.want {
				if widgets[i].Name != name {
					t.Errorf("widget[%d] = %s, want %s", i, widgets[i].Name, name)
				}
			}
		})
	}
}

func TestWidgetDefaults(t *testing.T) {
	c := loadCatalog(t)
	widgets := WidgetsFor(c["KSampler"])

	want := map[string]any{
		"seed":         float64(0),
		ControlWidget:  DefaultControlMode,
		"steps":        float64(20),
		"cfg":          8.0,
		"sampler_name": "euler",
		"scheduler":    "normal",
		"denoise":      1.0,
	}
	for _, w := range widgets {
		if w.Default != want[w.Name] {
			t.Errorf("%s default = %v (%T), want %v", w.Name, w.Default, w.Default, want[w.Name])
		}
	}

	save := WidgetsFor(c["SaveImage"])
	if save[1].Default != false {
		t.Errorf("BOOLEAN default = %v, want false", save[1].Default)
	}
}

func TestGenericWidgets(t *testing.T) {
	widgets := GenericWidgets(3)
	if len(widgets) != 3 {
		t.Fatalf("len = %d, want 3", len(widgets))
	}
	if widgets[2].Name != "widget_2" {
		t.Errorf("name = %s, want widget_2", widgets[2].Name)
	}
	if IndexOf(widgets, "widget_1") != 1 {
		t.Error("IndexOf(widget_1) != 1")
	}
	if IndexOf(widgets, "seed") != -1 {
		t.Error("IndexOf(seed) should be -1")
	}
}
