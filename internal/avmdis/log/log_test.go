package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupRoutesSlogToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avmdis.log")
	Setup(path, true)
	Setup("", false) // ignored

	if !Initialized() {
		t.Fatal("Setup did not initialize")
	}

	slog.Debug("decoded method", "offset", 0x40)
	func() {
		defer RecoverPanic("worker", nil)
		panic("boom")
	}()
	Logger().Info("done")
	if err := Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"decoded method", "offset=64", "Panic in worker", "boom", "done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRecoverPanicRunsCleanup(t *testing.T) {
	called := false
	func() {
		defer RecoverPanic("cleanup", func() { called = true })
		panic("x")
	}()
	if !called {
		t.Error("cleanup not called")
	}
}
