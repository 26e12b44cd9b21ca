package main

/*
  bio-tangram-bam annotates a coordinate-sorted BAM file for mobile element
  insertion calling. Each output record gets a ZA:Z tag describing the read,
  its mate, and any special reference entry they match. For more information,
  see github.com/grailbio/tangram/tangram/doc.go

  Example:

    bio-tangram-bam -input sample.bam -ref special.fa -required-match 40 \
      -target-ref-name chr20 -output sample.chr20.za.bam
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/tangram/tangram"
)

var (
	defaults       = tangram.DefaultOpts
	configFile     = flag.String("config", "", "YAML file with default values for the flags below. Flags given on the commandline take precedence.")
	input          = flag.String("input", "", "Input coordinate-sorted BAM file. Empty or '-' reads the standard input.")
	indexFile      = flag.String("index", "", "Input BAM index filename. By default, set to input BAM filename + .bai. It is created if missing and -target-ref-name is set.")
	outputPath     = flag.String("output", "", "Output BAM filename. Empty writes to the standard output.")
	refPath        = flag.String("ref", "", "FASTA file of the special reference panel. Required.")
	targetRefName  = flag.String("target-ref-name", "", "If set, only annotate reads on this chromosome. Requires a seekable -input.")
	requiredMatch  = flag.Int("required-match", 0, "Minimum number of bases a read must share with a special reference entry. Required, must be positive.")
	bufferCapacity = flag.Int("buffer-capacity", defaults.BufferCapacity, "Number of reads in one generation of the mate buffer.")
	minSeedLength  = flag.Int("min-seed-length", defaults.MinSeedLength, "Shortest exact seed match worth verifying with Smith-Waterman.")
	softClipRate   = flag.Float64("soft-clip-rate", defaults.SoftClipRate, "Max fraction of a read that may be soft clipped before it is treated as unmapped.")
	seedKmerLength = flag.Int("seed-kmer-length", defaults.SeedKmerLength, "Kmer length of the special reference seed index.")
	parallelism    = flag.Int("parallelism", defaults.Parallelism, "Number of BGZF compression and decompression goroutines.")
	statsFile      = flag.String("stats", "", "If set, write run statistics to this local file in the prometheus text format.")
)

// flagOpts copies the explicitly set flags into opts.
func flagOpts(opts *tangram.Opts) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			opts.Input = *input
		case "index":
			opts.Index = *indexFile
		case "output":
			opts.Output = *outputPath
		case "ref":
			opts.Ref = *refPath
		case "target-ref-name":
			opts.TargetRefName = *targetRefName
		case "required-match":
			opts.RequiredMatch = *requiredMatch
		case "buffer-capacity":
			opts.BufferCapacity = *bufferCapacity
		case "min-seed-length":
			opts.MinSeedLength = *minSeedLength
		case "soft-clip-rate":
			opts.SoftClipRate = *softClipRate
		case "seed-kmer-length":
			opts.SeedKmerLength = *seedKmerLength
		case "parallelism":
			opts.Parallelism = *parallelism
		case "stats":
			opts.StatsFile = *statsFile
		}
	})
}

func usageError(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
	flag.Usage()
	os.Exit(1)
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	ctx := vcontext.Background()
	opts := tangram.DefaultOpts
	if *configFile != "" {
		if err := tangram.LoadConfig(ctx, *configFile, &opts); err != nil {
			log.Fatalf("%v", err)
		}
	}
	flagOpts(&opts)
	opts.CommandLine = strings.Join(os.Args, " ")
	if err := opts.Validate(); err != nil {
		usageError(err)
	}
	if err := tangram.SetupAndRun(ctx, &opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
