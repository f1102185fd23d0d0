package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil func.
	called = false
	SetLogger(nil)
	Logf("message")
	if called {
		t.Error("no-op logger should not invoke the previous logger")
	}
	if Logf == nil {
		t.Error("Logf must never be nil")
	}
}
