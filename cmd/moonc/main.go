// moonc compiles Lua chunks to register bytecode.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/tliron/commonlog"

	"github.com/chazu/moonc/cache"
	"github.com/chazu/moonc/config"
	"github.com/chazu/moonc/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	debug := flag.Bool("debug", false, "Log every statement, fold and emitted instruction")
	listing := flag.Bool("l", false, "Print a listing of each compiled chunk")
	outDir := flag.String("o", "", "Directory for .moonc output (default: next to each source)")
	noOutput := flag.Bool("p", false, "Parse and compile only, write no output")
	noCache := flag.Bool("no-cache", false, "Bypass the compile cache")
	maxRegs := flag.Int("max-registers", 0, "Register limit per function (default from moonc.toml, else 250)")
	jobs := flag.Int("j", runtime.GOMAXPROCS(0), "Number of files compiled in parallel")
	configDir := flag.String("config", "", "Directory containing moonc.toml (default: search upward from cwd)")
	serveMode := flag.Bool("serve", false, "Start compile server (gRPC + Connect HTTP/JSON)")
	addr := flag.String("addr", "", "Compile server address (default from moonc.toml)")
	lspMode := flag.Bool("lsp", false, "Start LSP server on stdio")
	remote := flag.String("remote", "", "Compile on the gRPC server at this address")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: moonc [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles Lua chunks to register bytecode. Reads stdin when no files are given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  moonc -l main.lua              # Compile and print the listing\n")
		fmt.Fprintf(os.Stderr, "  moonc -o build src/*.lua       # Write .moonc files into build/\n")
		fmt.Fprintf(os.Stderr, "  moonc -serve -addr :7070       # Start compile server\n")
		fmt.Fprintf(os.Stderr, "  moonc -remote localhost:7070 -l main.lua  # Compile on a server\n")
		fmt.Fprintf(os.Stderr, "  moonc -lsp                     # Start LSP server for editors\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	if *debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override moonc.toml
	if *maxRegs > 0 {
		cfg.Compiler.MaxRegisters = *maxRegs
	}
	if *debug {
		cfg.Compiler.Debug = true
	}
	if *listing {
		cfg.Output.Listing = true
	}
	if *noOutput {
		cfg.Output.Format = "none"
	}
	if *noCache {
		cfg.Cache.Enabled = false
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *lspMode {
		if err := server.NewLSP(cfg.Compiler.MaxRegisters).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.Open(cfg.CachePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: compile cache disabled: %v\n", err)
		} else {
			defer c.Close()
		}
	}

	if *serveMode {
		srv := server.New(
			server.WithCache(c),
			server.WithMaxRegisters(cfg.Compiler.MaxRegisters),
			server.WithDebug(cfg.Compiler.Debug),
		)
		defer srv.Stop()
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	paths := flag.Args()
	ctx := context.Background()

	if *remote != "" {
		if err := runRemote(ctx, *remote, paths, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := buildOptions{
		outDir:  cfg.OutputDir(),
		format:  cfg.Output.Format,
		maxRegs: cfg.Compiler.MaxRegisters,
		debug:   cfg.Compiler.Debug,
		jobs:    *jobs,
		cache:   c,
	}
	if *outDir != "" {
		opts.outDir = *outDir
	}

	var results []result
	if len(paths) == 0 {
		results, err = compileStdin(os.Stdin, opts)
	} else {
		results, err = compileFiles(ctx, paths, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if failed := report(results, cfg.Output.Listing, *verbose, os.Stdout, os.Stderr); failed > 0 {
		os.Exit(1)
	}
}

// loadConfig loads moonc.toml from dir, or searches upward from the
// working directory when dir is empty. Defaults apply when no file exists.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
		cfg.Dir = wd
	}
	return cfg, nil
}

// report prints listings and errors, returning the number of failed chunks.
func report(results []result, listing, verbose bool, stdout, stderr io.Writer) int {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintln(stderr, r.err)
			failed++
			continue
		}
		if listing {
			fmt.Fprint(stdout, r.proto.Disassemble())
		}
		if verbose {
			status := "compiled"
			if r.cached {
				status = "cached"
			}
			if r.output != "" {
				fmt.Fprintf(stderr, "%s %s -> %s\n", status, r.path, r.output)
			} else {
				fmt.Fprintf(stderr, "%s %s\n", status, r.path)
			}
		}
	}
	return failed
}
