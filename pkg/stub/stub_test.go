package stub

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
)

func testSpecs() []Spec {
	return []Spec{
		{Name: "Identity", Kind: KindCode, Source: "(function (x) { return x })"},
		{Name: "Double", Kind: KindCode, Source: "(function (x) { return x * 2 })"},
		{Name: "HostNow", Kind: KindNative, Native: func(call goja.FunctionCall) goja.Value { return nil }},
	}
}

func TestTable_Setup(t *testing.T) {
	tbl := NewTable()
	if tbl.Initialized() {
		t.Fatalf("Initialized() = true before Setup")
	}
	if err := tbl.Setup(testSpecs()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !tbl.Initialized() {
		t.Errorf("Initialized() = false after Setup")
	}
	if tbl.Count() != 3 {
		t.Errorf("Count() = %d, want 3", tbl.Count())
	}
	want := []string{"Identity", "Double", "HostNow"}
	got := tbl.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTable_SetupTwicePanics(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Setup(testSpecs()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("second Setup did not panic")
		}
	}()
	tbl.Setup(testSpecs())
}

func TestTable_Lookup(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Setup(testSpecs()); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	e, ok := tbl.Lookup("Double")
	if !ok {
		t.Fatalf("Lookup(Double) not found")
	}
	if e.Kind != KindCode || e.Index != 1 || e.Artifact == nil {
		t.Errorf("entry = %+v, want KindCode at index 1 with artifact", e)
	}

	if _, ok := tbl.Lookup("Missing"); ok {
		t.Errorf("Lookup(Missing) found an entry")
	}

	// Native entries carry no artifact.
	if _, ok := tbl.Artifact("HostNow"); ok {
		t.Errorf("Artifact(HostNow) returned an artifact for a native stub")
	}
	if _, ok := tbl.Artifact("Identity"); !ok {
		t.Errorf("Artifact(Identity) not found")
	}
}

func TestTable_SetupErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{"duplicate", []Spec{{Name: "A", Kind: KindCode, Source: "1"}, {Name: "A", Kind: KindCode, Source: "2"}}, "duplicate"},
		{"missing native", []Spec{{Name: "A", Kind: KindNative}}, "missing native"},
		{"bad source", []Spec{{Name: "A", Kind: KindCode, Source: "function ("}}, "compile stub"},
		{"unknown kind", []Spec{{Name: "A", Kind: "weird"}}, "unknown kind"},
	}
	for _, tt := range tests {
		tbl := NewTable()
		err := tbl.Setup(tt.specs)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Setup error = %v, want containing %q", tt.name, err, tt.want)
		}
		if tbl.Initialized() {
			t.Errorf("%s: table initialized after failed Setup", tt.name)
		}
	}
}

func TestTable_TearDown(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Setup(testSpecs()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	tbl.TearDown()
	if tbl.Initialized() || tbl.Count() != 0 {
		t.Errorf("table not reset after TearDown")
	}
	// A fresh Setup after TearDown is allowed.
	if err := tbl.Setup(testSpecs()); err != nil {
		t.Fatalf("Setup after TearDown: %v", err)
	}
}
