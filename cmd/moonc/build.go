package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/moonc/cache"
	"github.com/chazu/moonc/compiler"
	"github.com/chazu/moonc/proto"
)

// OutputExt is the extension of encoded prototype files.
const OutputExt = ".moonc"

// stdinChunkName names the chunk read from standard input.
const stdinChunkName = "=stdin"

type buildOptions struct {
	outDir  string // "" writes next to each source
	format  string // "cbor" or "none"
	maxRegs int
	debug   bool
	jobs    int
	cache   *cache.Cache // nil compiles without caching
}

// result is the outcome of compiling one chunk. err holds a compile
// failure; I/O failures abort the whole build instead.
type result struct {
	path   string
	proto  *proto.Proto
	cached bool
	output string
	err    error
}

// compileFiles compiles paths concurrently and writes an encoded prototype
// for each chunk that compiles. Results keep the order of paths.
func compileFiles(ctx context.Context, paths []string, opts buildOptions) ([]result, error) {
	results := make([]result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if opts.jobs > 0 {
		g.SetLimit(opts.jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			r := compileChunk(path, string(data), opts)
			if r.err == nil && opts.format == "cbor" {
				r.output = outputPath(path, opts.outDir)
				if err := writeProto(r.output, r.proto); err != nil {
					return err
				}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// compileStdin compiles standard input. Nothing is written to disk unless
// an output directory is set.
func compileStdin(r io.Reader, opts buildOptions) ([]result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read stdin: %w", err)
	}
	res := compileChunk(stdinChunkName, string(data), opts)
	if res.err == nil && opts.format == "cbor" && opts.outDir != "" {
		res.output = filepath.Join(opts.outDir, "stdin"+OutputExt)
		if err := writeProto(res.output, res.proto); err != nil {
			return nil, err
		}
	}
	return []result{res}, nil
}

func compileChunk(name, input string, opts buildOptions) result {
	r := result{path: name}
	extra := []compiler.Option{compiler.WithDebug(opts.debug)}
	if opts.cache != nil {
		r.proto, r.cached, r.err = opts.cache.Compile(name, input, cache.Options{MaxRegisters: opts.maxRegs}, extra...)
		return r
	}
	extra = append(extra, compiler.WithMaxRegisters(opts.maxRegs))
	r.proto, r.err = compiler.Compile(name, input, extra...)
	return r
}

// outputPath returns where the encoded prototype for path is written.
func outputPath(path, outDir string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path)) + OutputExt
	if outDir == "" {
		return base
	}
	return filepath.Join(outDir, filepath.Base(base))
}

func writeProto(path string, p *proto.Proto) error {
	data, err := proto.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
