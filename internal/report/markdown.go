package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/hayashi/prowl/internal/model"
)

// MarkdownWriter outputs crawl results in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeQueryStats(md, result)
	w.writePoolHealth(md, result)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.CrawlResult) {
	md.H1("Crawl Report")
	md.PlainText("")

	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Queries", strconv.Itoa(len(result.Queries))},
			{"Unique Items", strconv.Itoa(result.GlobalUnique())},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", elapsed.String()},
		},
	})
	md.PlainText("")
}

// writeQueryStats writes the per-query totals and uniqueness table.
func (w *MarkdownWriter) writeQueryStats(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Queries")
	md.PlainText("")

	rows := make([][]string, 0, len(result.Queries))
	for _, q := range result.Queries {
		st := result.Stats[q]
		rows = append(rows, []string{
			"`" + q + "`",
			strconv.Itoa(st.Total),
			strconv.Itoa(st.UniqueToQuery),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Query", "Fetched", "Unique To Query"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePoolHealth writes the proxy pool's final state, with a pie chart
// when any proxies were tracked.
func (w *MarkdownWriter) writePoolHealth(md *markdown.Markdown, result *model.CrawlResult) {
	pool := result.Pool
	md.H2("Proxy Pool")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"State", "Count"},
		Rows: [][]string{
			{"Good", strconv.Itoa(pool.Good)},
			{"Cooldown", strconv.Itoa(pool.Cooldown)},
			{"Dead", strconv.Itoa(pool.Dead)},
		},
	})

	total := pool.Good + pool.Cooldown + pool.Dead
	if total == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Proxy Pool State"),
		piechart.WithShowData(true),
	)
	if pool.Good > 0 {
		chart.LabelAndIntValue("Good", uint64(pool.Good))
	}
	if pool.Cooldown > 0 {
		chart.LabelAndIntValue("Cooldown", uint64(pool.Cooldown))
	}
	if pool.Dead > 0 {
		chart.LabelAndIntValue("Dead", uint64(pool.Dead))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	if pool.Good == 0 {
		md.Warningf("No proxies remained usable at the end of the crawl. Results may be partial.")
	}
}
