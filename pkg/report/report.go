// Package report renders diagnostic sections for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/kylerisse/funcdoctor/pkg/check"
	"github.com/kylerisse/funcdoctor/pkg/doctor"
)

const (
	// ExitOK is returned when no item blocks the run.
	ExitOK = 0

	// ExitFailed is returned when at least one item blocks the run.
	ExitFailed = 1
)

// DefaultWidth is the line width used when Options.Width is unset.
const DefaultWidth = 120

var icons = map[check.Status]string{
	check.StatusPass: "✔",
	check.StatusWarn: "!",
	check.StatusFail: "✖",
}

// Options controls table rendering.
type Options struct {
	// Color enables ANSI colors regardless of the output stream.
	Color bool

	// Verbose shows hints and documentation links under items that did not pass.
	Verbose bool

	// Width truncates item lines to this many display columns.
	Width int

	// Path and Model are shown in the header when set.
	Path  string
	Model string
}

type palette struct {
	pass, warn, fail, title, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		pass:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed),
		title: color.New(color.Bold),
		dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.pass, p.warn, p.fail, p.title, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) status(s check.Status) *color.Color {
	switch s {
	case check.StatusPass:
		return p.pass
	case check.StatusWarn:
		return p.warn
	}
	return p.fail
}

// WriteTable writes sections as an indented, aligned listing followed by a
// summary line.
func WriteTable(w io.Writer, sections []doctor.SectionResult, opts Options) error {
	p := newPalette(opts.Color)
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}

	var b strings.Builder
	b.WriteString(p.title.Sprint("Azure Functions Doctor"))
	b.WriteString("\n")
	if opts.Path != "" {
		fmt.Fprintf(&b, "Path: %s\n", opts.Path)
	}
	if opts.Model != "" {
		fmt.Fprintf(&b, "Programming model: %s\n", opts.Model)
	}

	labelWidth := 0
	for _, sec := range sections {
		for _, item := range sec.Items {
			labelWidth = max(labelWidth, runewidth.StringWidth(item.Label))
		}
	}

	for _, sec := range sections {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s\n", p.status(sec.Status).Sprint(icons[sec.Status]), p.title.Sprint(sec.Title))
		for _, item := range sec.Items {
			line := fmt.Sprintf("%s: %s", runewidth.FillRight(item.Label, labelWidth), item.Value)
			line = runewidth.Truncate(line, width-4, "…")
			fmt.Fprintf(&b, "  %s %s\n", p.status(item.Status).Sprint(icon(item.Status)), line)

			if !opts.Verbose || item.Status == check.StatusPass {
				continue
			}
			if item.Hint != "" {
				fmt.Fprintf(&b, "      %s\n", p.dim.Sprintf("↪ %s", item.Hint))
			}
			if item.HintURL != "" {
				fmt.Fprintf(&b, "      %s\n", p.dim.Sprintf("↪ %s", item.HintURL))
			}
		}
	}

	sum := doctor.Summarize(sections)
	fmt.Fprintf(&b, "\nSummary: %s, %s, %s\n",
		p.pass.Sprintf("%d passed", sum.Passed),
		p.warn.Sprintf("%d warnings", sum.Warned),
		p.fail.Sprintf("%d failed", sum.Failed),
	)

	_, err := io.WriteString(w, b.String())
	return err
}

func icon(s check.Status) string {
	if i, ok := icons[s]; ok {
		return i
	}
	return icons[check.StatusFail]
}

// Document is the JSON report.
type Document struct {
	Path     string                 `json:"path,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Summary  doctor.Summary         `json:"summary"`
	Sections []doctor.SectionResult `json:"sections"`
}

// WriteJSON writes sections as an indented JSON document.
func WriteJSON(w io.Writer, path, model string, sections []doctor.SectionResult) error {
	if sections == nil {
		sections = []doctor.SectionResult{}
	}
	doc := Document{
		Path:     path,
		Model:    model,
		Summary:  doctor.Summarize(sections),
		Sections: sections,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return nil
}

// ExitCode returns ExitFailed when any item blocks the run.
func ExitCode(sections []doctor.SectionResult) int {
	if doctor.Failed(sections) {
		return ExitFailed
	}
	return ExitOK
}
