package relay

import (
	"testing"

	"github.com/PhaethonH/scxrelay/internal/relaysvc"
)

func TestFileConfigIdentity(t *testing.T) {
	fc := FileConfig{Name: "Custom Pad", Vendor: 0x1234, Product: 0x5678, Version: 2}
	want := relaysvc.Identity{Name: "Custom Pad", Vendor: 0x1234, Product: 0x5678, Version: 2}
	if got := fc.identity(); got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}
	if got := (FileConfig{}).identity(); got != (relaysvc.Identity{}) {
		t.Errorf("empty file config produced identity %+v", got)
	}
}

func TestFilterPrecedence(t *testing.T) {
	on := true
	off := false
	tests := []struct {
		name string
		flag bool
		file *bool
		want bool
	}{
		{"default off", false, nil, false},
		{"flag only", true, nil, true},
		{"file overrides flag off", true, &off, false},
		{"file overrides flag on", false, &on, true},
	}
	for _, test := range tests {
		r := &Relay{config: Config{FilterHomeButton: test.flag}}
		got := r.filterEnabled(FileConfig{FilterHomeButton: test.file})
		if got != test.want {
			t.Errorf("%s: filter = %v, want %v", test.name, got, test.want)
		}
	}
}
