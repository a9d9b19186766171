package permissions

import "testing"

func TestCheckStandardPreset(t *testing.T) {
	p, err := Preset("standard")
	if err != nil {
		t.Fatalf("Preset(standard): %v", err)
	}

	cases := []struct {
		action string
		want   Result
	}{
		{"tool:file:view:foo.txt", Allow},
		{"tool:bash:ls", Ask},
		{"tool:git:push origin main", Ask},
		{"tool:other:x", Deny},
		{"tool:git:status", Allow},
	}
	for _, c := range cases {
		got := Check(c.action, p)
		if got != c.want {
			t.Errorf("Check(%q, standard) = %v, want %v", c.action, got, c.want)
		}
	}
}

func TestCheckOpenAlwaysAllows(t *testing.T) {
	p, err := Preset("open")
	if err != nil {
		t.Fatalf("Preset(open): %v", err)
	}
	if got := Check("tool:anything:whatever", p); got != Allow {
		t.Errorf("Check(open) = %v, want Allow", got)
	}
}

func TestCheckLocked(t *testing.T) {
	p, err := Preset("locked")
	if err != nil {
		t.Fatalf("Preset(locked): %v", err)
	}
	if got := Check("tool:file:view:x", p); got != Allow {
		t.Errorf("Check(locked, view) = %v, want Allow", got)
	}
	if got := Check("tool:file:create:x", p); got != Deny {
		t.Errorf("Check(locked, create) = %v, want Deny", got)
	}
}

func TestAllowPrecedenceOverAsk(t *testing.T) {
	p, err := NewProfile("both", []string{"tool:bash:.*"}, []string{"tool:bash:.*"})
	if err != nil {
		t.Fatal(err)
	}
	if got := Check("tool:bash:ls", p); got != Allow {
		t.Errorf("allow precedence violated: got %v", got)
	}
}

func TestUnknownPreset(t *testing.T) {
	if _, err := Preset("nonexistent"); err == nil {
		t.Error("expected UnknownPreset error")
	}
}

func TestInvalidPattern(t *testing.T) {
	if _, err := NewProfile("bad", []string{"("}, nil); err == nil {
		t.Error("expected InvalidPermissionPattern error")
	}
}

func TestCheckIsPureTotal(t *testing.T) {
	p, _ := Preset("standard")
	for _, action := range []string{"", "tool:x:y", "garbage"} {
		r1 := Check(action, p)
		r2 := Check(action, p)
		if r1 != r2 {
			t.Errorf("Check not pure for %q: %v != %v", action, r1, r2)
		}
		if r1 != Allow && r1 != Ask && r1 != Deny {
			t.Errorf("Check(%q) returned non-total result %v", action, r1)
		}
	}
}
