// texguard protects LaTeX markup while a document goes through a
// text-only translation step.
//
//	texguard encode -f paper.tex        # paper/paper.CODED.tex + paper/paper_placeholders.json
//	texguard translate -f paper.tex     # paper/paper.TRANSLATED.tex, asks per paragraph
//	texguard decode -f paper.tex        # paper/paper_translated.tex
//	texguard run -f 'chapters/**/*.tex' -R
//	texguard check -f paper.tex         # compare markup of restored and source
//	texguard failures --export retry.txt
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"texguard/internal/types"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "texguard"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(3)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration faults to 2 and every other failure to 1.
func exitCode(err error) int {
	if types.IsCode(err, types.ErrConfig) {
		return 2
	}
	return 1
}
