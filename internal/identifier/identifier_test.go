package identifier

import (
	"errors"
	"testing"

	"github.com/chorus-run/chorus/internal/errs"
)

func TestValidateAgentName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"Bad-Name", true},
		{"a", true},
		{genString("a", 33), true},
		{"my-cool-agent", false},
		{"ab", false},
		{"a-b", false},
	}
	for _, c := range cases {
		err := ValidateAgentName(c.name)
		if c.wantErr && !errors.Is(err, errs.ErrInvalidAgentName) {
			t.Errorf("ValidateAgentName(%q) = %v, want InvalidAgentName", c.name, err)
		}
		if !c.wantErr && err != nil {
			t.Errorf("ValidateAgentName(%q) = %v, want nil", c.name, err)
		}
	}
}

func TestFormatAction(t *testing.T) {
	got := FormatAction("file", "view:foo.txt")
	want := "tool:file:view:foo.txt"
	if got != want {
		t.Errorf("FormatAction = %q, want %q", got, want)
	}
}

func genString(s string, n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, s...)
	}
	return string(out[:n])
}
