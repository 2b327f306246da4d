package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/bkup/internal/engine"
	"github.com/klauern/bkup/internal/executor"
	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/planner"
)

var titleCaser = cases.Title(language.English)

// ActionLine renders one planned action with its marker and size.
func ActionLine(a planner.Action) string {
	switch a.Type {
	case planner.CreateDirectory:
		return Info("+") + " " + a.Key() + "/"
	case planner.CopyFile:
		marker := Success("+")
		if a.Reason == planner.ReasonNewer {
			marker = Warning("~")
		}
		return fmt.Sprintf("%s %s %s", marker, a.Key(), Dim(fmt.Sprintf("(%s, %s)", a.Reason, humanize.Bytes(uint64(max(a.Size, 0))))))
	default:
		return a.String()
	}
}

// PlanSummary returns a one-line description of a plan's counts.
func PlanSummary(s planner.Summary) string {
	if s.Total() == 0 {
		return "up to date"
	}
	return fmt.Sprintf("%s %s to create, %s %s to copy (%s): %s missing, %s newer",
		humanize.Comma(int64(s.Dirs)), plural(s.Dirs, "directory", "directories"),
		humanize.Comma(int64(s.Files())), plural(s.Files(), "file", "files"),
		humanize.Bytes(uint64(max(s.Bytes, 0))),
		humanize.Comma(int64(s.Missing)), humanize.Comma(int64(s.Newer)))
}

// RenderPlan writes a plan listing: every action, conflicts, walk errors and
// a summary line. Walk warnings are listed only when verbose is set.
func RenderPlan(w io.Writer, p *engine.PlanResult, verbose bool) {
	fmt.Fprintf(w, "%s %s -> %s\n", Header("Plan:"), p.SourceRoot, p.DestRoot)
	if p.DestMissing {
		fmt.Fprintln(w, StatusPending("destination will be created"))
	}
	for _, msg := range p.Warnings {
		fmt.Fprintln(w, StatusWarning(msg))
	}

	for _, a := range p.Actions {
		fmt.Fprintln(w, "  "+ActionLine(a))
	}

	if len(p.Conflicts) > 0 {
		section(w, "conflicts")
		for _, c := range p.Conflicts {
			fmt.Fprintln(w, "  "+StatusError(c.Error()))
		}
	}

	var walkErrs fserr.List
	walkErrs.Extend(p.SourceErrors)
	walkErrs.Extend(p.DestErrors)
	renderErrors(w, walkErrs, verbose)

	fmt.Fprintf(w, "%s %s\n", Bold("Summary:"), PlanSummary(p.Summary))
}

// RenderReport writes the result of an execution. Per-action lines are
// written only when verbose is set; failures are always listed.
func RenderReport(w io.Writer, r *executor.Report, verbose bool) {
	if verbose {
		for _, o := range r.Outcomes {
			fmt.Fprintln(w, "  "+OutcomeLine(o))
		}
	}

	var errs fserr.List
	errs.Extend(r.Failures)
	errs.Extend(r.Warnings)
	renderErrors(w, errs, verbose)

	line := r.Summary()
	if r.Duration > 0 {
		line += Dim(fmt.Sprintf(" in %s", r.Duration.Round(time.Millisecond)))
	}
	switch {
	case r.Cancelled:
		fmt.Fprintln(w, StatusSkipped(line))
	case !r.Success():
		fmt.Fprintln(w, StatusError(line))
	case len(r.Warnings) > 0:
		fmt.Fprintln(w, StatusWarning(line))
	default:
		fmt.Fprintln(w, StatusSuccess(line))
	}
}

// OutcomeLine renders what happened to one action.
func OutcomeLine(o executor.Outcome) string {
	switch o.Status {
	case executor.StatusDone:
		msg := o.Action.String()
		if o.BackupPath != "" {
			msg += Dim(" [backed up]")
		}
		return StatusSuccess(msg)
	case executor.StatusPlanned:
		return StatusPending(o.Action.String())
	case executor.StatusFailed:
		if o.Err != nil {
			return StatusError(o.Err.Error())
		}
		return StatusError(o.Action.String())
	default:
		return StatusSkipped(o.Action.String())
	}
}

func renderErrors(w io.Writer, errs fserr.List, verbose bool) {
	failures := errs.Failures().Sorted()
	if len(failures) > 0 {
		section(w, "errors")
		for _, e := range failures {
			fmt.Fprintln(w, "  "+StatusError(errorLine(e)))
		}
	}

	warnings := errs.Warnings().Sorted()
	if len(warnings) == 0 {
		return
	}
	if !verbose {
		fmt.Fprintln(w, StatusWarning(fmt.Sprintf("%d %s (use --verbose to list)", len(warnings), plural(len(warnings), "warning", "warnings"))))
		return
	}
	section(w, "warnings")
	for _, e := range warnings {
		fmt.Fprintln(w, "  "+StatusWarning(errorLine(e)))
	}
}

func errorLine(e *fserr.PathError) string {
	return fmt.Sprintf("%s %s", Dim("["+KindLabel(e.Kind)+"]"), e.Error())
}

// KindLabel returns a human label for an error kind ("Path Unreadable").
func KindLabel(k fserr.Kind) string {
	return titleCaser.String(strings.ReplaceAll(k.String(), "_", " "))
}

func section(w io.Writer, name string) {
	fmt.Fprintln(w, Header(titleCaser.String(name)+":"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
