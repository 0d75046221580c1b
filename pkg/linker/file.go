package linker

import (
	"os"
	"path/filepath"

	"github.com/kirkbrauer/pefld/pkg/utils"
)

type File struct {
	Name    string
	Content []byte
}

func MustNewFile(filename string) *File {
	content, err := os.ReadFile(filename)
	utils.MustNo(err)
	return &File{
		Name:    filename,
		Content: content,
	}
}

func NewFileNoFatal(filename string) *File {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil
	}
	return &File{
		Name:    filename,
		Content: content,
	}
}

// FindLibrary resolves "-lfoo" against the search paths, trying
// "libfoo.pef" then "foo" in each directory.
func FindLibrary(ctx *Context, name string) *File {
	for _, dir := range ctx.Args.LibraryPaths {
		for _, stem := range []string{"lib" + name + ".pef", name} {
			if file := NewFileNoFatal(filepath.Join(dir, stem)); file != nil {
				return file
			}
		}
	}
	return nil
}
