// Package report renders batch run summaries as Markdown.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/odds-history-crawler/internal/runner"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Write renders summary to w.
func Write(w io.Writer, summary runner.Summary) error {
	md := markdown.NewMarkdown(w)

	writeHeader(md, summary)
	writeJobs(md, summary)
	writeTargets(md, summary)

	if err := md.Build(); err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	return nil
}

// WriteFile renders summary into path, creating parent directories.
func WriteFile(path string, summary runner.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // report path is operator supplied
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Write(f, summary); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

func writeHeader(md *markdown.Markdown, summary runner.Summary) {
	md.H1("Odds History Run Report")
	md.PlainText("")

	passed := len(summary.Results) - summary.Failed()
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", summary.Started.Format(timeLayout)},
			{"Finished", summary.Finished.Format(timeLayout)},
			{"Duration", summary.Finished.Sub(summary.Started).Round(time.Second).String()},
			{"Jobs", strconv.Itoa(len(summary.Results))},
			{"Passed", strconv.Itoa(passed)},
			{"Failed", strconv.Itoa(summary.Failed())},
		},
	})
	md.PlainText("")

	if failed := summary.Failed(); failed > 0 {
		md.Warningf("%d of %d job(s) failed.", failed, len(summary.Results))
	} else {
		md.Tip("All jobs passed.")
	}
	md.PlainText("")
}

func writeJobs(md *markdown.Markdown, summary runner.Summary) {
	md.H2("Jobs")
	md.PlainText("")

	rows := make([][]string, 0, len(summary.Results))
	for _, res := range summary.Results {
		status := "✅ pass"
		if !res.Passed() {
			status = "❌ fail"
		}
		rows = append(rows, []string{
			res.Name,
			status,
			cell(res.Request.String()),
			strconv.Itoa(res.Report.Events()),
			res.Duration.Round(time.Millisecond).String(),
			cell(errorText(res)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Job", "Status", "Request", "Events", "Duration", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeTargets(md *markdown.Markdown, summary runner.Summary) {
	var rows [][]string
	for _, res := range summary.Results {
		for _, t := range res.Report.Summaries() {
			rows = append(rows, []string{
				res.Name,
				string(t.Kind),
				cell(t.Target),
				string(t.Status),
				t.Scan,
				strconv.Itoa(t.Events),
				cell(t.Location),
			})
		}
	}
	if len(rows) == 0 {
		return
	}
	md.H2("Targets")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Job", "Kind", "Target", "Status", "Scan", "Events", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
}

func errorText(res runner.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	for _, t := range res.Report.Targets {
		if t.Err != nil {
			return t.Err.Error()
		}
	}
	return ""
}

// cell keeps table rows on one line.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
