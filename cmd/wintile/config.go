package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/wintile/internal/config"
)

type configCmd struct {
	usage string
	run   func(fs *flag.FlagSet, path *string, args []string) int
}

var configCmds = map[string]configCmd{
	"validate": {"validate [--path PATH]", runConfigValidate},
	"print":    {"print [--path PATH] [--defaults]", runConfigPrint},
	"explain":  {"explain [--path PATH] <yaml.path>", runConfigExplain},
	"sources":  {"sources [--path PATH]", runConfigSources},
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	names := make([]string, 0, len(configCmds))
	for name := range configCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  wintile config %s\n", configCmds[name].usage)
	}
}

func runConfig(args []string) int {
	if len(args) == 0 {
		printConfigUsage(os.Stderr)
		return 2
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printConfigUsage(os.Stdout)
		return 0
	}
	cmd, ok := configCmds[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n\n", args[0])
		printConfigUsage(os.Stderr)
		return 2
	}

	fs := flag.NewFlagSet("config "+args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wintile config %s\n\nFlags:\n", cmd.usage)
		fs.PrintDefaults()
	}
	path := fs.String("path", "", "Config file path (default: ~/.config/wintile/config.yaml)")
	return cmd.run(fs, path, args[1:])
}

func runConfigValidate(fs *flag.FlagSet, path *string, args []string) int {
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	res, code := mustLoadConfig(*path)
	if res == nil {
		return code
	}
	fmt.Printf("config: ok (%d file(s))\n", len(res.Files))
	return 0
}

func runConfigPrint(fs *flag.FlagSet, path *string, args []string) int {
	defaults := fs.Bool("defaults", false, "Print built-in defaults, ignoring config files")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg := config.DefaultConfig()
	if !*defaults {
		res, code := mustLoadConfig(*path)
		if res == nil {
			return code
		}
		cfg = res.Config
	}
	return printYAML(os.Stdout, cfg)
}

func runConfigExplain(fs *flag.FlagSet, path *string, args []string) int {
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "explain requires exactly one <yaml.path>")
		fs.Usage()
		return 2
	}
	res, code := mustLoadConfig(*path)
	if res == nil {
		return code
	}
	value, src, err := config.Explain(res, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("path: %s\nsource: %s\nvalue:\n", fs.Arg(0), formatSource(src))
	return printYAML(os.Stdout, value)
}

// runConfigSources prints every key set by a file, with its position.
func runConfigSources(fs *flag.FlagSet, path *string, args []string) int {
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	res, code := mustLoadConfig(*path)
	if res == nil {
		return code
	}
	for _, f := range res.Files {
		fmt.Printf("# %s\n", f)
	}
	keys := make([]string, 0, len(res.Sources))
	for k := range res.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k, formatSource(res.Sources[k]))
	}
	return 0
}

// mustLoadConfig reports load errors itself; a nil result carries the exit
// code.
func mustLoadConfig(path string) (*config.LoadResult, int) {
	var (
		res *config.LoadResult
		err error
	)
	if path == "" {
		res, err = config.LoadWithSources()
	} else {
		res, err = config.LoadFromPath(path)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, 1
	}
	return res, 0
}

func printYAML(w io.Writer, v any) int {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := enc.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func formatSource(src config.Source) string {
	switch {
	case src.Kind == config.SourceDefault:
		return "default"
	case src.Kind != config.SourceFile:
		return string(src.Kind)
	case src.File == "":
		return "file"
	case src.Line > 0:
		return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
	default:
		return "file:" + src.File
	}
}
