package tangram

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/tangram/encoding/bamprovider"
	"github.com/grailbio/tangram/matepair"
	"github.com/grailbio/tangram/specialref"
	"gopkg.in/yaml.v3"
)

// Opts defines the options of a run. The yaml keys match the commandline
// flag names.
type Opts struct {
	// Input is the coordinate-sorted BAM file. "" or "-" reads the standard
	// input.
	Input string `yaml:"input"`
	// Index is the BAM index. "" means Input + ".bai".
	Index string `yaml:"index"`
	// Output is the output BAM file. "" writes to the standard output.
	Output string `yaml:"output"`
	// Ref is the FASTA file of the special reference panel.
	Ref string `yaml:"ref"`
	// TargetRefName, if set, restricts the output to one chromosome.
	TargetRefName string `yaml:"target-ref-name"`
	// RequiredMatch is the minimum number of bases a read must share with a
	// special reference entry.
	RequiredMatch int `yaml:"required-match"`
	// BufferCapacity is the size of one mate buffer generation.
	BufferCapacity int `yaml:"buffer-capacity"`
	// MinSeedLength is the shortest seed hit worth verifying.
	MinSeedLength int `yaml:"min-seed-length"`
	// SoftClipRate is the max fraction of a read that may be soft clipped
	// before the read is treated as unmapped.
	SoftClipRate float64 `yaml:"soft-clip-rate"`
	// SeedKmerLength is the kmer length of the seed index.
	SeedKmerLength int `yaml:"seed-kmer-length"`
	// Parallelism is the number of BGZF compression and decompression
	// goroutines.
	Parallelism int `yaml:"parallelism"`
	// StatsFile, if set, receives run statistics in the prometheus text
	// format.
	StatsFile string `yaml:"stats"`

	// CommandLine is recorded in the @PG line of the output.
	CommandLine string `yaml:"-"`
}

// DefaultOpts is the set of default values of Opts.
var DefaultOpts = Opts{
	BufferCapacity: matepair.DefaultCapacity,
	MinSeedLength:  specialref.DefaultMinSeedLength,
	SoftClipRate:   matepair.DefaultSoftClipRate,
	SeedKmerLength: specialref.DefaultKmerLength,
	Parallelism:    1,
}

// stdin reports whether the input is read from the standard input.
func (o *Opts) stdin() bool {
	return o.Input == "" || o.Input == bamprovider.StdinPath
}

// Validate checks the options for consistency.
func (o *Opts) Validate() error {
	if o.Ref == "" {
		return fmt.Errorf("you must specify the special reference with -ref")
	}
	if o.RequiredMatch <= 0 {
		return fmt.Errorf("required-match must be positive, got %d", o.RequiredMatch)
	}
	if o.BufferCapacity <= 0 {
		return fmt.Errorf("buffer-capacity must be positive, got %d", o.BufferCapacity)
	}
	if o.MinSeedLength <= 0 {
		return fmt.Errorf("min-seed-length must be positive, got %d", o.MinSeedLength)
	}
	if o.SeedKmerLength < 1 || o.SeedKmerLength > 32 {
		return fmt.Errorf("seed-kmer-length must be in [1,32], got %d", o.SeedKmerLength)
	}
	if o.SoftClipRate <= 0 || o.SoftClipRate >= 1 {
		return fmt.Errorf("soft-clip-rate must be in (0,1), got %v", o.SoftClipRate)
	}
	if o.TargetRefName != "" && o.stdin() {
		return fmt.Errorf("target-ref-name requires a seekable -input file")
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	return nil
}

// LoadConfig overwrites the fields of opts that appear in the YAML file at
// path.
func LoadConfig(ctx context.Context, path string, opts *Opts) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open config", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return errors.E(err, "read config", path)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return errors.E(err, "parse config", path)
	}
	return nil
}
