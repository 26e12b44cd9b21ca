package tangram_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/tangram/tangram"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestValidate(t *testing.T) {
	valid := tangram.DefaultOpts
	valid.Ref = "special.fa"
	valid.RequiredMatch = 30
	valid.Parallelism = 0
	assert.NoError(t, valid.Validate())
	expect.EQ(t, valid.Parallelism, 1)

	for _, test := range []struct {
		modify func(o *tangram.Opts)
		errStr string
	}{
		{func(o *tangram.Opts) { o.Ref = "" }, "-ref"},
		{func(o *tangram.Opts) { o.RequiredMatch = 0 }, "required-match"},
		{func(o *tangram.Opts) { o.RequiredMatch = -3 }, "required-match"},
		{func(o *tangram.Opts) { o.BufferCapacity = 0 }, "buffer-capacity"},
		{func(o *tangram.Opts) { o.MinSeedLength = 0 }, "min-seed-length"},
		{func(o *tangram.Opts) { o.SeedKmerLength = 40 }, "seed-kmer-length"},
		{func(o *tangram.Opts) { o.SoftClipRate = 1.5 }, "soft-clip-rate"},
		{func(o *tangram.Opts) { o.TargetRefName = "chr1" }, "seekable"},
		{func(o *tangram.Opts) { o.TargetRefName = "chr1"; o.Input = "-" }, "seekable"},
	} {
		opts := valid
		test.modify(&opts)
		err := opts.Validate()
		expect.NotNil(t, err)
		if err != nil {
			expect.HasSubstr(t, err.Error(), test.errStr)
		}
	}

	opts := valid
	opts.TargetRefName = "chr1"
	opts.Input = "in.bam"
	expect.NoError(t, opts.Validate())
}

func TestLoadConfig(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := filepath.Join(tmpDir, "tangram.yaml")
	assert.NoError(t, ioutil.WriteFile(path, []byte(`
input: s3://bucket/sample.bam
ref: /data/special.fa
target-ref-name: chr20
required-match: 35
soft-clip-rate: 0.2
`), 0644))

	opts := tangram.DefaultOpts
	opts.Output = "out.bam"
	assert.NoError(t, tangram.LoadConfig(ctx, path, &opts))
	expect.EQ(t, opts.Input, "s3://bucket/sample.bam")
	expect.EQ(t, opts.Ref, "/data/special.fa")
	expect.EQ(t, opts.TargetRefName, "chr20")
	expect.EQ(t, opts.RequiredMatch, 35)
	expect.EQ(t, opts.SoftClipRate, 0.2)
	// Fields absent from the file keep their values.
	expect.EQ(t, opts.Output, "out.bam")
	expect.EQ(t, opts.BufferCapacity, 10000)
	expect.NoError(t, opts.Validate())

	assert.NoError(t, ioutil.WriteFile(path, []byte("required-match: [1, 2"), 0644))
	expect.NotNil(t, tangram.LoadConfig(ctx, path, &opts))
	expect.NotNil(t, tangram.LoadConfig(ctx, filepath.Join(tmpDir, "missing.yaml"), &opts))
}
