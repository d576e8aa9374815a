package sandbox

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Embedded toolchain sources. Prepare copies these into each scratch
// project so a run depends only on the SDK named in the toolchain argv,
// not on files shipped next to the binary.

//go:embed assets/Program.cs
var modifyTemplate string

//go:embed assets/ReadProgram.cs
var readTemplate string

//go:embed assets/PptxReader.cs
var readerLibrary string

//go:embed assets/PptxEditor.csproj
var projectFile string

const (
	codeMarker = "// {CODE}"

	programFileName     = "Program.cs"
	readProgramFileName = "ReadProgram.cs"
	readerFileName      = "PptxReader.cs"
	projectFileName     = "PptxEditor.csproj"
)

// renderModifySource splices a code fragment into the modify template at
// the marker. The fragment runs with the document already open and the
// validation pass queued after it.
func renderModifySource(fragment string) string {
	return strings.Replace(modifyTemplate, codeMarker, fragment, 1)
}

// renderReadSource splices a code fragment into the read wrapper. The
// fragment runs inside Main with filePath bound and exceptions mapped to
// a non-zero exit.
func renderReadSource(fragment string) string {
	return strings.Replace(readTemplate, codeMarker, fragment, 1)
}

// materialize writes the scratch project for one execution and returns the
// generated program source. Modify mode ships the rendered program plus the
// project file; read mode adds the reader library alongside the wrapper.
func materialize(dir string, mode domain.ExecMode, fragment string) (string, error) {
	var source string
	files := map[string]string{
		projectFileName: projectFile,
	}
	switch mode {
	case domain.ModeModify:
		source = renderModifySource(fragment)
		files[programFileName] = source
	default:
		source = renderReadSource(fragment)
		files[readProgramFileName] = source
		files[readerFileName] = readerLibrary
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return source, nil
}
