package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

func printUsage(w io.Writer) {
	fmt.Fprint(w, `reddit-dl downloads media posts from subreddits.

Usage:
  reddit-dl run [flags] [time] <subs> [terms...] [count] [image|video]
  reddit-dl run --subs kpop,twice --time year --count 5 --type image [terms...]
  reddit-dl matrix --subs kpop --terms sana,momo --times year,month
  reddit-dl matrix --batch requests.csv
  reddit-dl serve [--addr :8080]
  reddit-dl version

Run "reddit-dl <command> -h" for the flags of a command.
`)
}

func printRunUsage(fs *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `Usage: reddit-dl run [flags] [time] <subs> [terms...] [count] [image|video]

Without --subs the positional tokens are read as a command, e.g.
  reddit-dl run year kpop sana 5 image

Flags:
`)
	fs.PrintDefaults()
}

func printMatrixUsage(fs *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `Usage: reddit-dl matrix [flags]

Runs one request per search term and time filter, or every row of --batch.

Flags:
`)
	fs.PrintDefaults()
}

// printSummary writes the human readable run report.
func printSummary(w io.Writer, s domain.RunSummary) {
	fmt.Fprintf(w, "\nRun %s: %s\n", s.RunID, s.Request.Label())
	fmt.Fprintf(w, "  fetched %d, eligible %d, saved %d (%s), failed %d, skipped %d in %s\n",
		s.Fetched, s.Eligible, s.Succeeded, humanize.Bytes(uint64(s.TotalBytes())),
		s.Failed, s.Skipped, s.Duration().Round(time.Millisecond))

	for _, a := range s.Artifacts {
		fmt.Fprintf(w, "  + %s (%s, %s)\n", a.Path, a.Media.Kind, humanize.Bytes(uint64(a.Size)))
	}
	for _, f := range s.Failures {
		id := f.PostID
		if id == "" {
			id = "r/" + f.Subreddit
		}
		fmt.Fprintf(w, "  - %s [%s] %s\n", id, f.Stage, f.Reason)
	}
	for _, n := range s.Notes {
		fmt.Fprintf(w, "  * %s\n", n)
	}
}
