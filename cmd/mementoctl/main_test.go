package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"brooklyn/internal/codec"
	"brooklyn/internal/config"
	"brooklyn/internal/objectstore"
	"brooklyn/internal/persister"
	"brooklyn/pkg/memento"
)

func seed(t *testing.T, agg *memento.BrooklynMemento) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	store, err := objectstore.Open(ctx, config.Persistence{Driver: "fs", FSRoot: dir}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := persister.New(store, codec.JSON{}).Checkpoint(ctx, agg); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	return dir
}

func consistent() *memento.BrooklynMemento {
	app := memento.NewEntityBuilder().ID("app1").Type("acme.App").TopLevelApp(true).AddChild("web").Build()
	web := memento.NewEntityBuilder().ID("web").Type("acme.Web").Parent("app1").AddLocation("vm1").Build()
	vm := memento.NewLocationBuilder().ID("vm1").Type("acme.VM").Config("user", "root").Build()
	return memento.NewBuilder().ApplicationID("app1").Entities(app, web).TopLevelLocationID("vm1").Location(vm).Build()
}

func inconsistent() *memento.BrooklynMemento {
	app := memento.NewEntityBuilder().ID("app1").Type("acme.App").TopLevelApp(true).AddChild("gone").Build()
	web := memento.NewEntityBuilder().ID("web").Type("acme.Web").Parent("missing").AddLocation("nowhere").Build()
	return memento.NewBuilder().ApplicationID("app1").Entities(app, web).Build()
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestValidateConsistent(t *testing.T) {
	dir := seed(t, consistent())
	code, out, errOut := run(t, "validate", "--driver", "fs", "--fs-root", dir)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if !strings.Contains(out, "snapshot consistent: 2 entities, 1 locations") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := seed(t, inconsistent())
	code, out, errOut := run(t, "validate", "--driver", "fs", "--fs-root", dir)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	for _, missing := range []string{"gone", "missing", "nowhere"} {
		if !strings.Contains(out, missing) {
			t.Fatalf("expected %q in output, got %q", missing, out)
		}
	}
	if !strings.Contains(errOut, "3 problems") {
		t.Fatalf("unexpected stderr: %q", errOut)
	}
}

func TestManifestJSON(t *testing.T) {
	dir := seed(t, consistent())
	code, out, errOut := run(t, "manifest", "--driver", "fs", "--fs-root", dir)
	if code != 0 {
		t.Fatalf("manifest failed: %s", errOut)
	}
	var mf memento.Manifest
	if err := json.Unmarshal([]byte(out), &mf); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if mf.Entities["web"].Parent != "app1" || mf.Locations["vm1"] != "acme.VM" {
		t.Fatalf("unexpected manifest: %+v", mf)
	}
}

func TestManifestYAML(t *testing.T) {
	dir := seed(t, consistent())
	code, out, errOut := run(t, "manifest", "-o", "yaml", "--driver", "fs", "--fs-root", dir)
	if code != 0 {
		t.Fatalf("manifest failed: %s", errOut)
	}
	if !strings.Contains(out, "vm1: acme.VM") {
		t.Fatalf("unexpected yaml: %q", out)
	}
}

func TestShow(t *testing.T) {
	dir := seed(t, consistent())
	code, out, errOut := run(t, "show", "vm1", "--driver", "fs", "--fs-root", dir)
	if code != 0 {
		t.Fatalf("show failed: %s", errOut)
	}
	if !strings.Contains(out, `"user": "root"`) {
		t.Fatalf("unexpected output: %q", out)
	}

	code, _, errOut = run(t, "show", "nope", "--driver", "fs", "--fs-root", dir)
	if code != 1 || !strings.Contains(errOut, "not found") {
		t.Fatalf("expected not found, got %d %q", code, errOut)
	}
}

func TestExportRecodes(t *testing.T) {
	dir := seed(t, consistent())
	target := filepath.Join(t.TempDir(), "export")
	code, out, errOut := run(t, "export", "--to", target, "--to-codec", "msgpack", "--driver", "fs", "--fs-root", dir)
	if code != 0 {
		t.Fatalf("export failed: %s", errOut)
	}
	if !strings.Contains(out, "exported 3 objects") {
		t.Fatalf("unexpected output: %q", out)
	}

	code, out, errOut = run(t, "validate", "--driver", "fs", "--fs-root", target, "--codec", "msgpack")
	if code != 0 {
		t.Fatalf("validate export failed: %s", errOut)
	}
	if !strings.Contains(out, "2 entities") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExportRequiresTarget(t *testing.T) {
	code, _, errOut := run(t, "export", "--driver", "memory")
	if code != 1 || !strings.Contains(errOut, "--to is required") {
		t.Fatalf("expected missing target error, got %d %q", code, errOut)
	}
}

func TestUnknownDriver(t *testing.T) {
	code, _, errOut := run(t, "validate", "--driver", "floppy")
	if code != 1 || !strings.Contains(errOut, "unknown persistence driver") {
		t.Fatalf("expected driver error, got %d %q", code, errOut)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	oldArgs, oldExit := os.Args, exitFunc
	defer func() { os.Args, exitFunc = oldArgs, oldExit }()
	var got int
	exitFunc = func(code int) { got = code }
	os.Args = []string{"mementoctl", "validate", "--driver", "memory"}
	main()
	if got != 0 {
		t.Fatalf("expected exit 0 for an empty memory store, got %d", got)
	}
}
