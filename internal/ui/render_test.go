package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauern/bkup/internal/engine"
	"github.com/klauern/bkup/internal/executor"
	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/planner"
	"github.com/klauern/bkup/internal/tree"
)

func noColors(t *testing.T) {
	t.Helper()
	was := IsColorEnabled()
	DisableColors()
	t.Cleanup(func() {
		if was {
			EnableColors()
		}
	})
}

func samplePlan() *engine.PlanResult {
	actions := []planner.Action{
		{Type: planner.CreateDirectory, Path: []string{"docs"}},
		{Type: planner.CopyFile, Path: []string{"docs", "readme.txt"}, Reason: planner.ReasonMissing, Size: 5},
		{Type: planner.CopyFile, Path: []string{"notes.txt"}, Reason: planner.ReasonNewer, Size: 2048},
	}
	warn := fserr.New(fserr.IgnoreFileParse, ".bkignore", "ignore", errors.New("line 1: bad pattern"))
	return &engine.PlanResult{
		SourceRoot:   "/src",
		DestRoot:     "/dst",
		Actions:      actions,
		Conflicts:    []planner.Conflict{{Path: []string{"x"}, Source: tree.File, Dest: tree.Directory}},
		Summary:      planner.Summarize(actions),
		SourceErrors: fserr.List{warn}.WithRoot("/src"),
	}
}

func TestActionLine(t *testing.T) {
	noColors(t)

	tests := []struct {
		name   string
		action planner.Action
		want   string
	}{
		{"directory", planner.Action{Type: planner.CreateDirectory, Path: []string{"a", "b"}}, "+ a/b/"},
		{"missing", planner.Action{Type: planner.CopyFile, Path: []string{"f"}, Reason: planner.ReasonMissing, Size: 5}, "+ f (missing, 5 B)"},
		{"newer", planner.Action{Type: planner.CopyFile, Path: []string{"f"}, Reason: planner.ReasonNewer, Size: 2048}, "~ f (newer, 2.0 kB)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActionLine(tt.action); got != tt.want {
				t.Errorf("ActionLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlanSummary(t *testing.T) {
	if got := PlanSummary(planner.Summary{}); got != "up to date" {
		t.Errorf("PlanSummary(empty) = %q", got)
	}

	got := PlanSummary(planner.Summary{Dirs: 1, Missing: 1200, Newer: 1, Bytes: 2048})
	want := "1 directory to create, 1,201 files to copy (2.0 kB): 1,200 missing, 1 newer"
	if got != want {
		t.Errorf("PlanSummary() = %q, want %q", got, want)
	}
}

func TestRenderPlan(t *testing.T) {
	noColors(t)

	var buf bytes.Buffer
	RenderPlan(&buf, samplePlan(), false)
	out := buf.String()

	for _, want := range []string{
		"Plan: /src -> /dst",
		"  + docs/",
		"  + docs/readme.txt (missing, 5 B)",
		"  ~ notes.txt (newer, 2.0 kB)",
		"Conflicts:",
		"x is a file in source but a directory in destination",
		"1 warning (use --verbose to list)",
		"Summary: 1 directory to create, 2 files to copy",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Ignore File Parse") {
		t.Errorf("warnings should not be listed without verbose:\n%s", out)
	}
}

func TestRenderPlan_Verbose(t *testing.T) {
	noColors(t)

	p := samplePlan()
	p.DestMissing = true

	var buf bytes.Buffer
	RenderPlan(&buf, p, true)
	out := buf.String()

	for _, want := range []string{
		"destination will be created",
		"Warnings:",
		"[Ignore File Parse] ignore /src:.bkignore",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReport(t *testing.T) {
	noColors(t)

	copyAction := planner.Action{Type: planner.CopyFile, Path: []string{"a.txt"}, Reason: planner.ReasonMissing, Size: 5}
	failed := fserr.New(fserr.PathUnwritable, "b.txt", "rename", errors.New("permission denied"))

	r := &executor.Report{
		FilesCopied: 1,
		BytesCopied: 5,
		Failures:    fserr.List{failed},
		Outcomes: []executor.Outcome{
			{Action: copyAction, Status: executor.StatusDone, Bytes: 5, BackupPath: "run/a.txt"},
			{Action: planner.Action{Type: planner.CopyFile, Path: []string{"b.txt"}}, Status: executor.StatusFailed, Err: failed},
		},
	}

	var buf bytes.Buffer
	RenderReport(&buf, r, true)
	out := buf.String()

	for _, want := range []string{
		SymbolSuccess + " copy a.txt (missing) [backed up]",
		SymbolError + " rename b.txt: path_unwritable: permission denied",
		"Errors:",
		"[Path Unwritable]",
		SymbolError + " 0 directories created, 1 file copied (5 B), 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReport_Success(t *testing.T) {
	noColors(t)

	var buf bytes.Buffer
	RenderReport(&buf, &executor.Report{DirsCreated: 2}, false)

	want := SymbolSuccess + " 2 directories created, 0 files copied (0 B)\n"
	if got := buf.String(); got != want {
		t.Errorf("RenderReport() = %q, want %q", got, want)
	}
}

func TestOutcomeLine_Skipped(t *testing.T) {
	noColors(t)

	o := executor.Outcome{Action: planner.Action{Type: planner.CreateDirectory, Path: []string{"d"}}, Status: executor.StatusSkipped}
	if got := OutcomeLine(o); got != SymbolSkipped+" mkdir d" {
		t.Errorf("OutcomeLine() = %q", got)
	}
}

func TestKindLabel(t *testing.T) {
	if got := KindLabel(fserr.PathUnreadable); got != "Path Unreadable" {
		t.Errorf("KindLabel() = %q", got)
	}
}
