package tangram_test

import (
	"bytes"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/tangram/encoding/bamprovider"
	"github.com/grailbio/tangram/matepair"
	"github.com/grailbio/tangram/specialref"
	"github.com/grailbio/tangram/tangram"
	"github.com/grailbio/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var panelNames = []string{"special_L1HS", "special_AluY"}

func randomSeq(r *rand.Rand, n int) string {
	const bases = "ACGT"
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bases[r.Intn(len(bases))]
	}
	return string(seq)
}

// panelSeqs returns the sequences of the test panel.
func panelSeqs() []string {
	r := rand.New(rand.NewSource(1))
	return []string{randomSeq(r, 300), randomSeq(r, 300)}
}

func writePanel(t *testing.T, path string) {
	var buf bytes.Buffer
	for i, seq := range panelSeqs() {
		buf.WriteString(">" + panelNames[i] + "\n")
		buf.WriteString(seq[:150] + "\n" + seq[150:] + "\n")
	}
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))
}

func newVerifier(t *testing.T, requiredMatch int) *specialref.Verifier {
	seqs := panelSeqs()
	p, err := specialref.NewPanel(panelNames, [][]byte{[]byte(seqs[0]), []byte(seqs[1])})
	require.NoError(t, err)
	idx, err := specialref.NewKmerIndex(p, specialref.KmerIndexOpts{})
	require.NoError(t, err)
	return specialref.NewVerifier(p, idx, specialref.NewSmithWaterman(specialref.DefaultScoring),
		specialref.VerifierOpts{RequiredMatch: requiredMatch})
}

func newHeader(t *testing.T, names ...string) *sam.Header {
	var refs []*sam.Reference
	for _, name := range names {
		ref, err := sam.NewReference(name, "", "", 1000000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	h, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	h.SortOrder = sam.Coordinate
	return h
}

var genome = rand.New(rand.NewSource(12345))

type testRead struct {
	name         string
	ref, mateRef int // -1 for none
	pos          int
	flags        sam.Flags
	mapq         byte
	seq          string // random if empty
}

func newRecords(t *testing.T, h *sam.Header, reads []testRead) []*sam.Record {
	refOrNil := func(id int) *sam.Reference {
		if id < 0 {
			return nil
		}
		return h.Refs()[id]
	}
	var recs []*sam.Record
	for _, tr := range reads {
		seq := tr.seq
		if seq == "" {
			seq = randomSeq(genome, 100)
		}
		cigar := []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, len(seq))}
		qual := bytes.Repeat([]byte{30}, len(seq))
		r, err := sam.NewRecord(tr.name, refOrNil(tr.ref), refOrNil(tr.mateRef), tr.pos, 0, 0, tr.mapq, cigar, []byte(seq), qual, nil)
		require.NoError(t, err)
		r.Flags = tr.flags
		recs = append(recs, r)
	}
	return recs
}

// recordingWriter remembers every record written to it.
type recordingWriter struct {
	recs []*sam.Record
}

func (w *recordingWriter) Write(r *sam.Record) error {
	w.recs = append(w.recs, r)
	return nil
}

func names(recs []*sam.Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func zaTag(t *testing.T, r *sam.Record) string {
	aux := r.AuxFields.Get(sam.NewTag(matepair.TagName))
	require.NotNil(t, aux, r.Name)
	return aux.Value().(string)
}

const (
	r1 = sam.Paired | sam.Read1
	r2 = sam.Paired | sam.Read2
)

func TestRunWholeFile(t *testing.T) {
	h := newHeader(t, "chr0", "chr1")
	insSeq := panelSeqs()[1][50:150]
	recs := newRecords(t, h, []testRead{
		{name: "a", ref: 0, mateRef: 0, pos: 100, flags: r1, mapq: 60},
		{name: "ins", ref: 0, mateRef: 1, pos: 150, flags: r1, mapq: 60, seq: insSeq},
		{name: "a", ref: 0, mateRef: 0, pos: 300, flags: r2, mapq: 50},
		{name: "lonely", ref: 0, mateRef: 0, pos: 400, flags: r2, mapq: 20},
		{name: "ins", ref: 1, mateRef: 0, pos: 500, flags: r2, mapq: 40},
		{name: "unp", ref: 1, mateRef: -1, pos: 600, flags: 0, mapq: 10},
	})
	opts := tangram.DefaultOpts
	opts.Ref = "unused"
	opts.RequiredMatch = 40
	require.NoError(t, opts.Validate())

	a := tangram.NewAnnotator(&opts, newVerifier(t, opts.RequiredMatch))
	w := &recordingWriter{}
	require.NoError(t, a.Run(bamprovider.NewFakeProvider(h, recs), w))
	require.Equal(t, []string{"a", "a", "lonely", "ins", "ins", "unp"}, names(w.recs))
	assert.Equal(t, "<@;60;;;1;;><&;50;;;1;;>", zaTag(t, w.recs[0]))
	assert.Equal(t, "<&;50;;;1;;><@;60;;;1;;>", zaTag(t, w.recs[1]))
	assert.Equal(t, "<&;20;;;1;;><@;0;;;0;;>", zaTag(t, w.recs[2]))
	assert.Equal(t, "<@;60;;Al;1;;><&;40;;;1;;>", zaTag(t, w.recs[3]))
	assert.Equal(t, "<&;40;;;1;;><@;60;;Al;1;;>", zaTag(t, w.recs[4]))
	assert.Equal(t, "<@;10;;;1;;>", zaTag(t, w.recs[5]))

	stats := a.Stats()
	assert.Equal(t, 6.0, promtestutil.ToFloat64(stats.RecordsRead))
	assert.Equal(t, 6.0, promtestutil.ToFloat64(stats.RecordsWritten))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(stats.RecordsVerified))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(stats.InsertionHits))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(stats.Pairs))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(stats.Singletons))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(stats.Unpaired))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(stats.PreloadedRecords))
}

func TestRunReverseComplementInsertion(t *testing.T) {
	h := newHeader(t, "chr0")
	fwd := panelSeqs()[0][100:200]
	// An unmapped read whose sequence is the reverse complement of the panel.
	rc := strings.NewReplacer("A", "t", "C", "g", "G", "c", "T", "a").Replace(fwd)
	rcBytes := []byte(strings.ToUpper(rc))
	for i, j := 0, len(rcBytes)-1; i < j; i, j = i+1, j-1 {
		rcBytes[i], rcBytes[j] = rcBytes[j], rcBytes[i]
	}
	recs := newRecords(t, h, []testRead{
		{name: "m", ref: 0, mateRef: 0, pos: 10, flags: r1 | sam.MateUnmapped, mapq: 60},
		{name: "m", ref: 0, mateRef: 0, pos: 10, flags: r2 | sam.Unmapped, mapq: 0, seq: string(rcBytes)},
	})
	opts := tangram.DefaultOpts
	opts.Ref = "unused"
	opts.RequiredMatch = 40
	require.NoError(t, opts.Validate())
	a := tangram.NewAnnotator(&opts, newVerifier(t, opts.RequiredMatch))
	w := &recordingWriter{}
	require.NoError(t, a.Run(bamprovider.NewFakeProvider(h, recs), w))
	require.Equal(t, []string{"m", "m"}, names(w.recs))
	assert.Equal(t, "<@;60;;;1;;><&;0;;L1;1;;>", zaTag(t, w.recs[0]))
	assert.Equal(t, "<&;0;;L1;1;;><@;60;;;1;;>", zaTag(t, w.recs[1]))
	// The heuristic leaves pairs with an unmapped mate alone.
	assert.True(t, w.recs[1].Flags&sam.Unmapped != 0)
}

func TestRunTarget(t *testing.T) {
	h := newHeader(t, "chr0", "chr1", "chr2")
	recs := newRecords(t, h, []testRead{
		{name: "x", ref: 0, mateRef: 1, pos: 10, flags: r1, mapq: 60},
		{name: "z", ref: 0, mateRef: 0, pos: 20, flags: r1, mapq: 60},
		{name: "x", ref: 1, mateRef: 0, pos: 10, flags: r2, mapq: 61},
		{name: "p", ref: 1, mateRef: 1, pos: 20, flags: r1, mapq: 62},
		{name: "p", ref: 1, mateRef: 1, pos: 30, flags: r2, mapq: 63},
		{name: "y", ref: 1, mateRef: 2, pos: 40, flags: r2, mapq: 64},
		{name: "y", ref: 2, mateRef: 1, pos: 50, flags: r1, mapq: 65},
		{name: "w", ref: 2, mateRef: 1, pos: 60, flags: r1, mapq: 66},
	})
	opts := tangram.DefaultOpts
	opts.Input = "in.bam"
	opts.Ref = "unused"
	opts.RequiredMatch = 40
	opts.TargetRefName = "chr1"
	require.NoError(t, opts.Validate())
	a := tangram.NewAnnotator(&opts, newVerifier(t, opts.RequiredMatch))
	w := &recordingWriter{}
	require.NoError(t, a.Run(bamprovider.NewFakeProvider(h, recs), w))
	// Only chr1 records are written. Their mates elsewhere only fill in the
	// tags, and w, whose mate is missing from chr1, is dropped.
	require.Equal(t, []string{"x", "p", "p", "y"}, names(w.recs))
	for _, r := range w.recs {
		assert.Equal(t, h.Refs()[1], r.Ref)
	}
	assert.Equal(t, "<&;61;;;1;;><@;60;;;1;;>", zaTag(t, w.recs[0]))
	assert.Equal(t, "<@;62;;;1;;><&;63;;;1;;>", zaTag(t, w.recs[1]))
	assert.Equal(t, "<&;64;;;1;;><@;65;;;1;;>", zaTag(t, w.recs[3]))

	stats := a.Stats()
	assert.Equal(t, 3.0, promtestutil.ToFloat64(stats.PreloadedRecords))
	assert.Equal(t, 4.0, promtestutil.ToFloat64(stats.RecordsRead))
	assert.Equal(t, 4.0, promtestutil.ToFloat64(stats.RecordsWritten))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(stats.Pairs))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(stats.PreloadMatched))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(stats.PreloadDropped))

	opts.TargetRefName = "chrX"
	a = tangram.NewAnnotator(&opts, newVerifier(t, opts.RequiredMatch))
	err := a.Run(bamprovider.NewFakeProvider(h, recs), &recordingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrX")
}

func TestOutputHeader(t *testing.T) {
	h := newHeader(t, "chr0")
	out, err := tangram.OutputHeader(h, "bio-tangram-bam -ref x.fa")
	require.NoError(t, err)
	assert.Equal(t, sam.Unsorted, out.SortOrder)
	assert.Equal(t, sam.Coordinate, h.SortOrder)
	require.Equal(t, 1, len(out.Progs()))
	assert.Equal(t, "tangram_bam", out.Progs()[0].UID())
	assert.Equal(t, "bio-tangram-bam -ref x.fa", out.Progs()[0].Command())

	out, err = tangram.OutputHeader(out, "again")
	require.NoError(t, err)
	require.Equal(t, 2, len(out.Progs()))
	assert.Equal(t, "tangram_bam.1", out.Progs()[1].UID())
}

func writeBAM(t *testing.T, path string, h *sam.Header, recs []*sam.Record) {
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, h, 1)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func readBAM(t *testing.T, path string) (*sam.Header, []*sam.Record) {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	r, err := bam.NewReader(f, 1)
	require.NoError(t, err)
	var recs []*sam.Record
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		recs = append(recs, rec)
	}
	require.NoError(t, r.Close())
	return r.Header(), recs
}

func TestSetupAndRun(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	refPath := filepath.Join(tmpDir, "special.fa")
	writePanel(t, refPath)

	h := newHeader(t, "chr0", "chr1")
	recs := newRecords(t, h, []testRead{
		{name: "a", ref: 0, mateRef: 0, pos: 100, flags: r1, mapq: 60},
		{name: "ins", ref: 0, mateRef: 1, pos: 150, flags: r1, mapq: 60, seq: panelSeqs()[1][50:150]},
		{name: "a", ref: 0, mateRef: 0, pos: 300, flags: r2, mapq: 50},
		{name: "ins", ref: 1, mateRef: 0, pos: 500, flags: r2, mapq: 40},
	})
	inPath := filepath.Join(tmpDir, "in.bam")
	writeBAM(t, inPath, h, recs)

	opts := tangram.DefaultOpts
	opts.Input = inPath
	opts.Output = filepath.Join(tmpDir, "out.bam")
	opts.Ref = refPath
	opts.RequiredMatch = 40
	opts.StatsFile = filepath.Join(tmpDir, "stats.txt")
	opts.CommandLine = "bio-tangram-bam"
	require.NoError(t, tangram.SetupAndRun(ctx, &opts))

	outHeader, out := readBAM(t, opts.Output)
	assert.Equal(t, sam.Unsorted, outHeader.SortOrder)
	require.Equal(t, []string{"a", "a", "ins", "ins"}, names(out))
	assert.Equal(t, "<@;60;;Al;1;;><&;40;;;1;;>", zaTag(t, out[2]))
	stats, err := ioutil.ReadFile(opts.StatsFile)
	require.NoError(t, err)
	assert.Contains(t, string(stats), "tangram_records_written_total 4")
	assert.Contains(t, string(stats), "tangram_insertion_hits_total 1")

	// Target mode builds the missing index.
	_, err = os.Stat(inPath + ".bai")
	require.True(t, os.IsNotExist(err))
	opts.TargetRefName = "chr1"
	opts.Output = filepath.Join(tmpDir, "out-chr1.bam")
	opts.StatsFile = ""
	require.NoError(t, tangram.SetupAndRun(ctx, &opts))
	_, err = os.Stat(inPath + ".bai")
	require.NoError(t, err)
	_, out = readBAM(t, opts.Output)
	require.Equal(t, []string{"ins"}, names(out))
	assert.Equal(t, h.Refs()[1].Name(), out[0].Ref.Name())
	assert.Equal(t, "<&;40;;;1;;><@;60;;Al;1;;>", zaTag(t, out[0]))
}

func TestSetupAndRunErrors(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	opts := tangram.DefaultOpts
	opts.Input = filepath.Join(tmpDir, "in.bam")
	opts.Ref = filepath.Join(tmpDir, "missing.fa")
	opts.RequiredMatch = 10
	err := tangram.SetupAndRun(ctx, &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.fa")

	refPath := filepath.Join(tmpDir, "special.fa")
	writePanel(t, refPath)
	opts.Ref = refPath
	err = tangram.SetupAndRun(ctx, &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in.bam")

	opts.RequiredMatch = 0
	require.Error(t, tangram.SetupAndRun(ctx, &opts))
}
