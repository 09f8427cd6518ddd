// bgpview-dump reads a view file written by bgpview-collector's viewio/file
// sink and prints it in the ascii format, for debugging collector output
// without a database or Kafka handy.
package main

import (
	"fmt"
	"os"

	"github.com/route-beacon/bgpview/internal/peersig"
	"github.com/route-beacon/bgpview/internal/viewio"
	"github.com/route-beacon/bgpview/internal/viewio/ascii"
	"github.com/route-beacon/bgpview/internal/viewio/file"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: bgpview-dump <view-file> [collector]")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening view file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	v, err := file.Read(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decoding view file: %v\n", err)
		os.Exit(1)
	}

	filter := viewio.Filter{}
	if len(os.Args) > 2 {
		collector := os.Args[2]
		filter.FilterPeer = func(sig peersig.Sig) bool { return sig.Collector == collector }
	}

	if err := ascii.Write(os.Stdout, v, filter); err != nil {
		fmt.Fprintf(os.Stderr, "printing view: %v\n", err)
		os.Exit(1)
	}
}
