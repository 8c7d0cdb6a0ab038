// Package main provides the fbref-crawler CLI.
//
// Usage:
//
//	fbref-crawler crawl --config config.yaml
//	fbref-crawler validate --config config.yaml
//	fbref-crawler version
package main

func main() {
	Execute()
}
