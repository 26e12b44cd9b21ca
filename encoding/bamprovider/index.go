package bamprovider

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
)

// IndexPath returns the pathname of the index of the BAM file at path. If
// index is nonempty, it is returned as is.
func IndexPath(path, index string) string {
	if index != "" {
		return index
	}
	return path + ".bai"
}

// EnsureIndex makes sure that a random-access index exists for the BAM file at
// path. A missing index is built by scanning the file and written to
// IndexPath(path, index).
func EnsureIndex(ctx context.Context, path, index string) error {
	indexPath := IndexPath(path, index)
	if _, err := file.Stat(ctx, indexPath); err == nil {
		return nil
	} else if !errors.Is(errors.NotExist, err) {
		return errors.E(err, "stat", indexPath)
	}
	log.Error.Printf("bamprovider: index %s not found, creating it", indexPath)
	return BuildIndex(ctx, path, indexPath)
}

// BuildIndex reads the coordinate-sorted BAM file at path and writes its .bai
// index to indexPath.
func BuildIndex(ctx context.Context, path, indexPath string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "read header", path)
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var idx bam.Index
	n := 0
	for {
		rec, e := r.Read()
		if e == io.EOF {
			break
		}
		if e != nil {
			return errors.E(e, "read", path)
		}
		if e = idx.Add(rec, r.LastChunk()); e != nil {
			return errors.E(e, "index record", rec.Name, path)
		}
		n++
	}
	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return errors.E(err, "create", indexPath)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = bam.WriteIndex(out.Writer(ctx), &idx); err != nil {
		return errors.E(err, "write", indexPath)
	}
	log.Debug.Printf("bamprovider: indexed %d records of %s into %s", n, path, indexPath)
	return nil
}
