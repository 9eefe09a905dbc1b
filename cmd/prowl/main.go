// Package main provides the entry point for the prowl CLI.
//
// Prowl crawls a search API through a rotating pool of health-tracked
// proxies, deduplicates the results across queries, and writes them out
// as JSON or Markdown.
//
// Usage:
//
//	prowl crawl <query> [query...]
//	prowl refresh
//
// See --help for all available options.
package main

// main is the entry point for prowl.
func main() {
	Execute()
}
