package doctor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/detect"
	"github.com/kylerisse/funcdoctor/pkg/host"
	"github.com/kylerisse/funcdoctor/pkg/host/hosttest"
	"github.com/kylerisse/funcdoctor/pkg/project"
	"github.com/kylerisse/funcdoctor/pkg/rule"
	"github.com/kylerisse/funcdoctor/pkg/rules"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func healthyHost() *hosttest.Fake {
	return &hosttest.Fake{
		Env:      map[string]string{"PATH": "/usr/bin"},
		Python:   "/usr/bin/python3",
		Paths:    map[string]string{"func": "/usr/local/bin/func"},
		Versions: map[string]string{host.TargetPython: "3.11.4", host.TargetFuncCoreTools: "4.0.5455"},
		Modules:  map[string]bool{"azure.functions": true},
	}
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}
}

func memProject(t *testing.T, files map[string]string) *project.Project {
	t.Helper()
	fsys := memfs.New()
	for name, content := range files {
		if err := util.WriteFile(fsys, name, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	p, err := project.New("/app", fsys)
	if err != nil {
		t.Fatalf("project.New failed: %v", err)
	}
	return p
}

func findItem(sections []SectionResult, label string) (Item, bool) {
	for _, sec := range sections {
		for _, item := range sec.Items {
			if item.Label == label {
				return item, true
			}
		}
	}
	return Item{}, false
}

const v2App = "import azure.functions as func\napp = func.FunctionApp()\n\n@app.route(route=\"hello\")\ndef hello(req):\n    return func.HttpResponse(\"hi\")\n"

func TestRunAllChecks_HealthyProjectOnDisk(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"host.json":        `{"version": "2.0"}`,
		"requirements.txt": "azure-functions\n",
		"function_app.py":  v2App,
	})

	d, err := New(context.Background(), dir, WithHost(healthyHost()), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Model() != detect.ModelV2 {
		t.Errorf("expected v2, got %q", d.Model())
	}
	if d.LegacyWarning() != "" {
		t.Errorf("expected no legacy warning, got %q", d.LegacyWarning())
	}

	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}
	for _, label := range []string{"requirements.txt", "host.json version"} {
		item, ok := findItem(sections, label)
		if !ok {
			t.Fatalf("item %q not found", label)
		}
		if item.Status != check.StatusPass {
			t.Errorf("%s: expected pass, got %q (%s)", label, item.Status, item.Value)
		}
	}
}

func TestRunAllChecks_EmptyProject(t *testing.T) {
	d, err := New(context.Background(), t.TempDir(), WithHost(healthyHost()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}
	for _, label := range []string{"requirements.txt", "host.json version"} {
		item, ok := findItem(sections, label)
		if !ok {
			t.Fatalf("item %q not found", label)
		}
		if item.Status != check.StatusFail {
			t.Errorf("%s: expected fail, got %q", label, item.Status)
		}
	}

	var structure *SectionResult
	for i := range sections {
		if sections[i].Category == "project_structure" {
			structure = &sections[i]
		}
	}
	if structure == nil {
		t.Fatal("project_structure section missing")
	}
	if structure.Status != check.StatusFail || structure.Title != "Project Structure" {
		t.Errorf("unexpected section %q status %q", structure.Title, structure.Status)
	}
	if !Failed(sections) {
		t.Error("expected blocking failures")
	}
}

func TestNew_NestedLegacyProjectIsIncompatible(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"host.json":                 `{"version": "2.0"}`,
		"HttpExample/function.json": `{"bindings": []}`,
	})

	_, err := New(context.Background(), dir, WithHost(healthyHost()))
	var ipe *detect.IncompatibleProjectError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected *detect.IncompatibleProjectError, got %v", err)
	}

	d, err := New(context.Background(), dir, WithHost(healthyHost()), WithAllowLegacy(true))
	if err != nil {
		t.Fatalf("expected legacy project to be allowed, got %v", err)
	}
	if d.Model() != detect.ModelV1 || d.LegacyWarning() == "" {
		t.Errorf("expected v1 with a warning, got %q %q", d.Model(), d.LegacyWarning())
	}
}

func TestNew_RootLegacyProjectProceeds(t *testing.T) {
	p := memProject(t, map[string]string{
		"function.json": `{"scriptFile": "main.py", "entryPoint": "main"}`,
		"main.py":       "def main(req): return 'Hello'",
	})
	d, err := NewForProject(context.Background(), p, WithHost(healthyHost()))
	if err != nil {
		t.Fatalf("expected root-only legacy project to proceed, got %v", err)
	}
	if d.Model() != detect.ModelV1 {
		t.Errorf("expected v1, got %q", d.Model())
	}

	rs, err := d.LoadRules()
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	for _, r := range rs {
		if r.ID == "check_programming_model_v2" {
			t.Error("v2 rule loaded for v1 project")
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	p := memProject(t, nil)
	for name, opt := range map[string]Option{
		"nil logger":   WithLogger(nil),
		"nil host":     WithHost(nil),
		"nil registry": WithRegistry(nil),
		"nil loader":   WithLoader(nil),
		"neg parallel": WithParallel(-1),
		"zero size":    WithMaxFileSize(0),
	} {
		if _, err := NewForProject(context.Background(), p, opt); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRunAllChecks_RuleDocumentErrors(t *testing.T) {
	p := memProject(t, nil)

	d, err := NewForProject(context.Background(), p, WithLoader(&rules.Loader{FS: fstest.MapFS{}}))
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	_, err = d.RunAllChecks(context.Background())
	if !errors.Is(err, rules.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	d, _ = NewForProject(context.Background(), p, WithLoader(&rules.Loader{FS: fstest.MapFS{
		"v2.json": {Data: []byte(`[{"id":`)},
	}}))
	_, err = d.RunAllChecks(context.Background())
	if !errors.Is(err, rules.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestRunAllChecks_GroupingAndNormalization(t *testing.T) {
	doc := `[
		{"id":"a","type":"file_exists","label":"A","section":"files","check_order":1,"condition":{"target":"host.json"},"hint":"create it","hint_url":"https://example.com/a"},
		{"id":"b","type":"env_var_exists","label":"B","section":"env","check_order":2,"condition":{"target":"MISSING"},"required":false},
		{"id":"c","type":"unknown_type","label":"C","section":"files","check_order":3},
		{"id":"d","type":"file_glob_check","label":"D","section":"env","check_order":4,"condition":{"patterns":"*.pyc"}}
	]`
	p := memProject(t, map[string]string{"host.json": "{}"})
	d, err := NewForProject(context.Background(), p,
		WithHost(healthyHost()),
		WithLoader(&rules.Loader{FS: fstest.MapFS{"v2.json": {Data: []byte(doc)}}}),
	)
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}

	if len(sections) != 2 || sections[0].Category != "files" || sections[1].Category != "env" {
		t.Fatalf("unexpected sections %+v", sections)
	}

	files := sections[0]
	if files.Status != check.StatusFail {
		t.Errorf("expected files section to fail on unknown type, got %q", files.Status)
	}
	if files.Items[0].Hint != "create it" || files.Items[0].HintURL != "https://example.com/a" {
		t.Errorf("expected hint passthrough, got %+v", files.Items[0])
	}
	if !strings.Contains(files.Items[1].Value, "Unknown check type") {
		t.Errorf("expected unknown type detail, got %q", files.Items[1].Value)
	}

	env := sections[1]
	optional := env.Items[0]
	if optional.Status != check.StatusPass || optional.Value != "MISSING is not set"+OptionalSuffix {
		t.Errorf("expected optional miss downgraded to pass with qualifier, got %+v", optional)
	}
	config := env.Items[1]
	if config.Status != check.StatusFail || !strings.HasPrefix(config.Value, "Configuration error") {
		t.Errorf("expected configuration failure, got %+v", config)
	}
	if env.Status != check.StatusFail {
		t.Errorf("expected env section to fail on required config error, got %q", env.Status)
	}
}

func TestRunAllChecks_OptionalFailureKeepsSectionPassing(t *testing.T) {
	doc := `[{"id":"b","type":"env_var_exists","section":"env","condition":{"target":"MISSING"},"required":false}]`
	d, err := NewForProject(context.Background(), memProject(t, nil),
		WithHost(healthyHost()),
		WithLoader(&rules.Loader{FS: fstest.MapFS{"v2.json": {Data: []byte(doc)}}}),
	)
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}
	if sections[0].Status != check.StatusPass {
		t.Errorf("expected section to pass, got %q", sections[0].Status)
	}
	if item := sections[0].Items[0]; item.Status != check.StatusPass || !strings.HasSuffix(item.Value, OptionalSuffix) {
		t.Errorf("expected optional item to pass with qualifier, got %+v", item)
	}
	if Failed(sections) {
		t.Error("optional failure should not block")
	}
}

func TestRunAllChecks_ErrorStatusDisplaysAsFail(t *testing.T) {
	reg := check.NewRegistry()
	err := reg.Register(rule.KindFileExists, func(context.Context, rule.Rule, check.Target) (check.Result, error) {
		return check.Result{}, project.ErrFileTooLarge
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	doc := `[{"id":"a","type":"file_exists","section":"files","condition":{"target":"x"}}]`
	d, err := NewForProject(context.Background(), memProject(t, nil),
		WithRegistry(reg),
		WithHost(healthyHost()),
		WithLoader(&rules.Loader{FS: fstest.MapFS{"v2.json": {Data: []byte(doc)}}}),
	)
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}
	item := sections[0].Items[0]
	if item.Status != check.StatusFail || item.Value != "Memory error: File too large to process." {
		t.Errorf("expected error shown as fail with detail, got %+v", item)
	}
}

func TestRunAllChecks_ParallelMatchesSequential(t *testing.T) {
	files := map[string]string{
		"host.json":        `{"version": "2.0"}`,
		"requirements.txt": "azure-functions\n",
		"function_app.py":  v2App,
	}

	run := func(parallel int) []SectionResult {
		d, err := NewForProject(context.Background(), memProject(t, files), WithHost(healthyHost()), WithParallel(parallel))
		if err != nil {
			t.Fatalf("NewForProject failed: %v", err)
		}
		sections, err := d.RunAllChecks(context.Background())
		if err != nil {
			t.Fatalf("RunAllChecks failed: %v", err)
		}
		return sections
	}

	seq, par := run(0), run(4)
	if len(seq) != len(par) {
		t.Fatalf("expected %d sections, got %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Category != par[i].Category || len(seq[i].Items) != len(par[i].Items) {
			t.Fatalf("section %d differs: %+v vs %+v", i, seq[i], par[i])
		}
		for j := range seq[i].Items {
			if seq[i].Items[j] != par[i].Items[j] {
				t.Errorf("item %d/%d differs: %+v vs %+v", i, j, seq[i].Items[j], par[i].Items[j])
			}
		}
	}
}

func TestRunAllChecks_Canceled(t *testing.T) {
	d, err := NewForProject(context.Background(), memProject(t, nil), WithHost(healthyHost()))
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.RunAllChecks(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunAllChecks_CustomRulesMerged(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "extra.yaml")
	if err := os.WriteFile(custom, []byte(`
- id: check_worker_runtime_env
  type: env_var_exists
  label: Worker runtime
  section: custom
  check_order: 100
  condition:
    target: FUNCTIONS_WORKER_RUNTIME
`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	fake := healthyHost()
	fake.Env["FUNCTIONS_WORKER_RUNTIME"] = "python"
	d, err := NewForProject(context.Background(), memProject(t, nil), WithHost(fake), WithCustomRules(custom))
	if err != nil {
		t.Fatalf("NewForProject failed: %v", err)
	}
	sections, err := d.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks failed: %v", err)
	}
	item, ok := findItem(sections, "Worker runtime")
	if !ok {
		t.Fatal("custom rule not evaluated")
	}
	if item.Status != check.StatusPass {
		t.Errorf("expected pass, got %+v", item)
	}
	if _, ok := findItem(sections, "requirements.txt"); !ok {
		t.Error("built-in rules should still be evaluated")
	}
}
