package form

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuilderChain(t *testing.T) {
	f, err := NewBuilder("general").
		Title("General").
		Settings("adept_general").
		Text("site_name").Label("Site name").Required().
		Switch("maintenance").
		Textarea("maintenance_message").ShowWhen("maintenance", OpIsChecked, nil).End().
		UpdateField("site_name", func(f *Field) { f.Placeholder = "Acme" }).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"site_name", "maintenance", "maintenance_message"}, f.FieldIDs()); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	if got := f.Field("site_name"); !got.Required || got.Placeholder != "Acme" || got.Label != "Site name" {
		t.Errorf("site_name = %+v", got)
	}
	if got := f.Field("maintenance"); got.Default != false || got.Label != "Maintenance" {
		t.Errorf("switch defaults not applied: %+v", got)
	}
	if f.Storage.Strategy != "settings" || f.Storage.Group != "adept_general" {
		t.Errorf("storage = %+v", f.Storage)
	}
	if f.Method != "POST" || f.Layout != LayoutTable || f.Capability != "manage_options" {
		t.Errorf("form defaults = %s %s %s", f.Method, f.Layout, f.Capability)
	}
}

func TestBuilderKindNormalization(t *testing.T) {
	f := NewBuilder("k").Email("contact").End().Number("count").End().URL("site").End().MustBuild()
	for id, rule := range map[string]string{"contact": "email", "count": "numeric", "site": "url"} {
		if f.Field(id).Rules[rule] != true {
			t.Errorf("%s missing %s rule: %v", id, rule, f.Field(id).Rules)
		}
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
		want string
	}{
		{"duplicate id", NewBuilder("f").Text("a").Text("a").End(), `duplicate field id "a"`},
		{"unknown type", NewBuilder("f").Field("a", "rainbow").End(), `unknown type "rainbow"`},
		{"bad pattern", NewBuilder("f").Text("a").Rule("pattern", "(").End(), "invalid pattern"},
		{"unknown parent", NewBuilder("f").Text("a").ShowWhen("ghost", OpEquals, 1).End(), `unknown field "ghost"`},
		{"unknown operator", NewBuilder("f").Text("a").Text("b").ShowWhen("a", "near", 1).End(), `unknown operator "near"`},
		{"mixed kinds", NewBuilder("f").Text("a").Text("b").ShowWhen("a", OpEquals, 1).HideWhen("a", OpEquals, 2).End(), "cannot mix"},
		{"reserved separator", NewBuilder("f").Text("a___b").End(), "reserved"},
		{"repeater without options", NewBuilder("f").Repeater("r", "checkbox").End(), "needs options"},
		{"update unknown", NewBuilder("f").Text("a").End().UpdateField("zzz", func(*Field) {}), `unknown field "zzz"`},
		{"no fields", NewBuilder("f"), "no fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFieldConfiguratorBothLevels(t *testing.T) {
	var fc FieldConfigurator = NewBuilder("f")
	fc = fc.Text("a")
	fc = fc.Switch("b")
	f, err := fc.(*FieldBuilder).Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Fields) != 2 {
		t.Fatalf("fields = %d", len(f.Fields))
	}
}
