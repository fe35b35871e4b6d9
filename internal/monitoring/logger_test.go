package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("rule %s done")
	if got != "rule %s done" {
		t.Errorf("custom logger saw %q", got)
	}

	got = ""
	SetLogger(nil)
	Logf("muted")
	if got != "" {
		t.Error("nil logger should mute output")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf must have a default")
	}
}
