// Command whisper-subtitle transcribes audio into subtitles and watches
// YouTube channels for new uploads to transcribe.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
