// Package report writes crawl results in machine-readable (JSON) and
// human-readable (Markdown) formats.
package report
