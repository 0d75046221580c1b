package main

import (
	"fmt"
	"os"

	"github.com/kirkbrauer/pefld/pkg/linker"
	"github.com/kirkbrauer/pefld/pkg/utils"
)

var version = "0.1.0"

func main() {
	ctx := linker.NewContext()
	// remaining holds object files and -l / --weak-l requests in order
	remaining := ctx.ParseArgs(os.Args[1:], version)
	if len(remaining) == 0 {
		utils.Fatal("no input files")
	}

	// sanity-check the first object's architecture up front for a clearer
	// message than a per-file parse error
	for _, filename := range remaining {
		if len(filename) > 0 && filename[0] == '-' {
			continue
		}
		file := linker.MustNewFile(filename)
		arch := linker.GetArchFromContent(file.Content)
		if arch != linker.ArchPowerPC {
			utils.Fatal(fmt.Sprintf("%s: unsupported architecture %s", filename, arch))
		}
		break
	}

	linker.ReadInputFiles(ctx, remaining)
	ctx.ReportErrors()

	linker.ResolveLibraries(ctx)
	linker.CheckUndefined(ctx)
	ctx.ReportErrors()

	linker.CreateOutputSections(ctx)
	ctx.ReportErrors()

	if err := linker.WriteResult(ctx); err != nil {
		utils.Fatal(err.Error())
	}

	if ctx.Args.Verbose {
		fmt.Printf("wrote %s (%d bytes)\n", ctx.Args.Output, len(ctx.Buf))
	}
}
