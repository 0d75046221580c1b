package linker

import (
	"testing"

	"github.com/xyproto/env/v2"
)

func TestParseArgs(t *testing.T) {
	ctx := NewContext()
	remaining := ctx.ParseArgs([]string{
		"-o", "out.pef",
		"-e", "entry0",
		"-L", "libs",
		"-L", "more/libs",
		"--base-code=0x1000",
		"--base-data", "0x200000",
		"--allow-undefined",
		"a.o",
		"-lfoo",
		"--weak-l", "bar",
		"b.o",
	}, "test")

	args := &ctx.Args
	if args.Output != "out.pef" || args.Entry != "entry0" {
		t.Errorf("output=%q entry=%q", args.Output, args.Entry)
	}
	if len(args.LibraryPaths) != 2 || args.LibraryPaths[1] != "more/libs" {
		t.Errorf("library paths = %v", args.LibraryPaths)
	}
	if args.BaseCode != 0x1000 || args.BaseData != 0x200000 {
		t.Errorf("bases = 0x%x, 0x%x", args.BaseCode, args.BaseData)
	}
	if !args.AllowUndefined {
		t.Error("allow-undefined not set")
	}

	want := []string{"a.o", "-lfoo", "--weak-lbar", "b.o"}
	if len(remaining) != len(want) {
		t.Fatalf("remaining = %v, want %v", remaining, want)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Fatalf("remaining = %v, want %v", remaining, want)
		}
	}
}

func TestContextDefaultsFromEnvironment(t *testing.T) {
	// env/v2 snapshots the environment on first use, so the cache must be
	// refreshed after the variables change and again once they are restored.
	// Cleanups run last-in-first-out, so registering this before Setenv
	// reloads the cache after Setenv's own cleanup has run.
	t.Cleanup(func() { env.Load() })
	t.Setenv("PEFLD_OUTPUT", "env.pef")
	t.Setenv("PEFLD_ENTRY", "env_main")
	env.Load()
	ctx := NewContext()
	if ctx.Args.Output != "env.pef" || ctx.Args.Entry != "env_main" {
		t.Errorf("output=%q entry=%q", ctx.Args.Output, ctx.Args.Entry)
	}
}

func TestErrorAccumulation(t *testing.T) {
	ctx := NewContext()
	if ctx.HasErrors() {
		t.Error("fresh context has errors")
	}
	ctx.Errorf("first: %d", 1)
	ctx.Errorf("second: %d", 2)
	if len(ctx.Errors) != 2 || ctx.Errors[0] != "first: 1" {
		t.Errorf("errors = %v", ctx.Errors)
	}
}
