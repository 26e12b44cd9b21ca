package tangram

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
	"github.com/grailbio/tangram/encoding/bamprovider"
	"github.com/grailbio/tangram/encoding/fasta"
	"github.com/grailbio/tangram/matepair"
	"github.com/grailbio/tangram/specialref"
)

// ProgramID is the ID of the @PG line added to the output header.
const ProgramID = "tangram_bam"

// Annotator runs the special reference search and the mate pairing over a
// BAM stream.
type Annotator struct {
	opts     *Opts
	verifier *specialref.Verifier
	stats    *Stats
	summary  runSummary
}

// runSummary is the part of Stats that is logged at the end of a run.
type runSummary struct {
	matepair.Stats
	written, hits int
}

// NewAnnotator creates an annotator. opts must have been validated.
func NewAnnotator(opts *Opts, verifier *specialref.Verifier) *Annotator {
	return &Annotator{opts: opts, verifier: verifier, stats: newStats()}
}

// Stats returns the counters of the run.
func (a *Annotator) Stats() *Stats { return a.stats }

// countingWriter counts the records passed to the underlying writer.
type countingWriter struct {
	w matepair.Writer
	a *Annotator
}

func (w *countingWriter) Write(r *sam.Record) error {
	w.a.stats.RecordsWritten.Inc()
	w.a.summary.written++
	return w.w.Write(r)
}

func (a *Annotator) annotate(r *sam.Record) *matepair.Alignment {
	al := matepair.NewAlignment(r)
	if !matepair.IsProblematic(r, a.opts.SoftClipRate) {
		return al
	}
	a.stats.RecordsVerified.Inc()
	if id, ok := a.verifier.Match(r.Seq.Expand()); ok {
		al.SetInsertion(a.verifier.Prefix(id))
		a.stats.InsertionHits.Inc()
		a.summary.hits++
	}
	return al
}

// Run reads the records of the provider in coordinate order and writes every
// one of them, annotated, to w. With a target chromosome, only the records of
// that chromosome are written. Their mates on other chromosomes are read first
// and used only to fill in the tags.
func (a *Annotator) Run(provider bamprovider.Provider, w matepair.Writer) error {
	header, err := provider.GetHeader()
	if err != nil {
		return err
	}
	var target *sam.Reference
	if a.opts.TargetRefName != "" {
		if target = bamprovider.RefByName(header, a.opts.TargetRefName); target == nil {
			return fmt.Errorf("target reference %s not found in the BAM header", a.opts.TargetRefName)
		}
	}
	buf := matepair.NewBuffer(&countingWriter{w: w, a: a}, matepair.BufferOpts{
		Capacity:     a.opts.BufferCapacity,
		SoftClipRate: a.opts.SoftClipRate,
		Preloaded:    target != nil,
	})

	var iter bamprovider.Iterator
	if target != nil {
		if err := a.preload(provider, header, target, buf); err != nil {
			return err
		}
		log.Debug.Printf("main pass over %s", target.Name())
		iter = bamprovider.NewRefIterator(provider, target.Name(), 0, target.Len())
	} else {
		log.Debug.Printf("main pass over the whole file")
		iter = provider.NewIterator(gbam.UniversalShard(header))
	}
	for iter.Scan() {
		a.stats.RecordsRead.Inc()
		if err := buf.Add(a.annotate(iter.Record())); err != nil {
			iter.Close() // nolint: errcheck
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if err := buf.Close(); err != nil {
		return err
	}
	a.stats.addBufferStats(buf.Stats())
	a.summary.Stats = buf.Stats()
	return nil
}

// preload collects the records on chromosomes other than target whose mate is
// on target, and stores them in buf.
func (a *Annotator) preload(provider bamprovider.Provider, header *sam.Header, target *sam.Reference, buf *matepair.Buffer) error {
	var shards []gbam.Shard
	if s, ok := gbam.RefRangeShard(header, 0, target.ID()-1); ok {
		shards = append(shards, s)
	}
	if s, ok := gbam.RefRangeShard(header, target.ID()+1, len(header.Refs())-1); ok {
		shards = append(shards, s)
	}
	n := 0
	for _, shard := range shards {
		iter := provider.NewIterator(shard)
		for iter.Scan() {
			r := iter.Record()
			if r.Flags&sam.Paired == 0 || r.MateRef.ID() != target.ID() {
				continue
			}
			buf.Preload(a.annotate(r))
			n++
		}
		if err := iter.Close(); err != nil {
			return errors.E(err, "preload", shard.String())
		}
	}
	a.stats.PreloadedRecords.Add(float64(n))
	log.Debug.Printf("preloaded %d records with mates on %s", n, target.Name())
	return nil
}

// OutputHeader returns a copy of h for the annotated output: the sort order is
// cleared, since mates are written together, and a @PG line is added.
func OutputHeader(h *sam.Header, commandLine string) (*sam.Header, error) {
	out := h.Clone()
	if out.SortOrder == sam.Coordinate || out.SortOrder == sam.QueryName {
		out.SortOrder = sam.Unsorted
	}
	id := ProgramID
	for i := 1; ; i++ {
		taken := false
		for _, p := range out.Progs() {
			if p.UID() == id {
				taken = true
				break
			}
		}
		if !taken {
			break
		}
		id = fmt.Sprintf("%s.%d", ProgramID, i)
	}
	if err := out.AddProgram(sam.NewProgram(id, ProgramID, commandLine, "", "")); err != nil {
		return nil, err
	}
	return out, nil
}

// NewVerifier loads the special reference panel at path and builds the
// verifier used by Annotator.
func NewVerifier(ctx context.Context, opts *Opts) (*specialref.Verifier, error) {
	fa, err := fasta.Open(ctx, opts.Ref)
	if err != nil {
		return nil, errors.E(err, "load special reference", opts.Ref)
	}
	panel, err := specialref.LoadPanel(fa)
	if err != nil {
		return nil, errors.E(err, "load special reference", opts.Ref)
	}
	if panel.NumEntries() == 0 {
		return nil, errors.E(errors.Invalid, "special reference is empty", opts.Ref)
	}
	index, err := specialref.NewKmerIndex(panel, specialref.KmerIndexOpts{KmerLength: opts.SeedKmerLength})
	if err != nil {
		return nil, err
	}
	return specialref.NewVerifier(panel, index, specialref.NewSmithWaterman(specialref.DefaultScoring),
		specialref.VerifierOpts{RequiredMatch: opts.RequiredMatch, MinSeedLength: opts.MinSeedLength}), nil
}

// SetupAndRun validates opts, opens the input, the special reference and the
// output, and runs the annotator.
func SetupAndRun(ctx context.Context, opts *Opts) (err error) {
	if err := opts.Validate(); err != nil {
		return err
	}
	verifier, err := NewVerifier(ctx, opts)
	if err != nil {
		return err
	}
	input := opts.Input
	if opts.stdin() {
		input = bamprovider.StdinPath
	}
	if opts.TargetRefName != "" {
		if err := bamprovider.EnsureIndex(ctx, input, opts.Index); err != nil {
			return err
		}
	}
	provider := bamprovider.NewProvider(input, bamprovider.ProviderOpts{
		Index:       opts.Index,
		Parallelism: opts.Parallelism,
	})
	e := errors.Once{}
	defer func() {
		e.Set(err)
		err = e.Err()
	}()
	defer func() { e.Set(provider.Close()) }()

	header, err := provider.GetHeader()
	if err != nil {
		return errors.E(err, "read header", input)
	}
	outHeader, err := OutputHeader(header, opts.CommandLine)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if opts.Output != "" {
		f, err := file.Create(ctx, opts.Output)
		if err != nil {
			return errors.E(err, "create", opts.Output)
		}
		defer func() { e.Set(f.Close(ctx)) }()
		out = f.Writer(ctx)
	}
	w, err := bam.NewWriter(out, outHeader, opts.Parallelism)
	if err != nil {
		return errors.E(err, "create bam writer", opts.Output)
	}
	annotator := NewAnnotator(opts, verifier)
	e.Set(annotator.Run(provider, w))
	e.Set(w.Close())
	if err := e.Err(); err != nil {
		return err
	}
	s := annotator.summary
	log.Printf("tangram: %s: wrote %d records, %d pairs, %d singletons, %d insertion hits",
		input, s.written, s.Pairs, s.Singletons, s.hits)
	if opts.StatsFile != "" {
		if err := annotator.Stats().WriteFile(opts.StatsFile); err != nil {
			return errors.E(err, "write stats", opts.StatsFile)
		}
	}
	return nil
}
