// Command newsharvest incrementally harvests a paginated news archive into a
// local JSON store.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
