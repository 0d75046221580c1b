package linker

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kirkbrauer/pefld/pkg/utils"
	"github.com/xyproto/env/v2"
)

type ContextArgs struct {
	Output         string
	Entry          string
	LibraryPaths   []string
	BaseCode       uint64
	BaseData       uint64
	AllowUndefined bool
	Verbose        bool
}

// Context owns all per-link state: configuration, the symbol table, parsed
// inputs, layout results and accumulated diagnostics. One Context per
// invocation; nothing is process-global.
type Context struct {
	Args ContextArgs

	Objs       []*ObjectFile
	SharedLibs []*SharedLibrary
	SymTab     *SymbolTable

	OutputSections []*OutputSection

	// Libraries requested but not found; strong ones only matter if
	// undefined symbols remain at the end of resolution.
	MissingLibs []string

	Errors []string

	Buf []byte
}

func NewContext() *Context {
	return &Context{
		Args: ContextArgs{
			Output: env.Str("PEFLD_OUTPUT", "a.out"),
			Entry:  env.Str("PEFLD_ENTRY", "_main"),
		},
		SymTab: NewSymbolTable(),
	}
}

func (ctx *Context) Errorf(format string, args ...any) {
	ctx.Errors = append(ctx.Errors, fmt.Sprintf(format, args...))
}

func (ctx *Context) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pefld: warning: %s\n", fmt.Sprintf(format, args...))
}

func (ctx *Context) HasErrors() bool {
	return len(ctx.Errors) > 0
}

// ReportErrors prints every accumulated diagnostic and exits non-zero if
// there were any. No output file has been committed at that point.
func (ctx *Context) ReportErrors() {
	if !ctx.HasErrors() {
		return
	}
	for _, msg := range ctx.Errors {
		fmt.Fprintf(os.Stderr, "pefld: error: %s\n", msg)
	}
	os.Exit(1)
}

// ParseArgs consumes the option arguments and returns the remaining
// input-file and -l arguments in command-line order.
func (ctx *Context) ParseArgs(args []string, version string) []string {
	ctx.Args.Verbose = env.Bool("PEFLD_VERBOSE")

	dashes := func(name string) []string {
		return utils.AddDashes(name)
	}

	var arg string
	readArg := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option -%s: argument missing", name))
				}
				arg = args[1]
				args = args[2:]
				return true
			}
			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}
			if ok := len(args[0]) > len(prefix) && args[0][:len(prefix)] == prefix; ok {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}
	readFlag := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	remaining := make([]string, 0)
	for len(args) > 0 {
		switch {
		case readFlag("help"):
			fmt.Printf("usage: pefld [options] file...\n")
			os.Exit(0)
		case readFlag("version"):
			fmt.Printf("pefld %s\n", version)
			os.Exit(0)
		case readArg("o"), readArg("output"):
			ctx.Args.Output = arg
		case readArg("e"), readArg("entry"):
			ctx.Args.Entry = arg
		case readArg("L"):
			ctx.Args.LibraryPaths = append(ctx.Args.LibraryPaths, arg)
		case readArg("base-code"):
			ctx.Args.BaseCode = parseAddress(arg, "--base-code")
		case readArg("base-data"):
			ctx.Args.BaseData = parseAddress(arg, "--base-data")
		case readFlag("allow-undefined"):
			ctx.Args.AllowUndefined = true
		case readFlag("verbose"):
			ctx.Args.Verbose = true
		case readArg("weak-l"):
			remaining = append(remaining, "--weak-l"+arg)
		default:
			if len(args[0]) > 1 && args[0][0] == '-' && args[0][1] != 'l' {
				utils.Fatal(fmt.Sprintf("unknown argument '%s'", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}
	return remaining
}

func parseAddress(s, option string) uint64 {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		utils.Fatal(fmt.Sprintf("%s: invalid value: %s", option, s))
	}
	return v
}
