package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/harperdean/rocklens/internal/diag"
)

// Render writes the report to w in the requested format.
func Render(w io.Writer, format string, rep *diag.AnalysisReport) error {
	switch format {
	case "text", "":
		return RenderText(w, rep)
	case "json":
		return RenderJSON(w, rep)
	case "markdown", "md":
		return RenderMarkdown(w, rep)
	case "html":
		return RenderHTML(w, rep)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Write renders the report into dir, creating it if needed, and returns
// the path of the file it wrote. File names carry the generation
// timestamp so repeated runs never clobber each other.
func Write(dir, format string, rep *diag.AnalysisReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create report directory")
	}

	name := fmt.Sprintf("slow_query_report_%s.%s", rep.GeneratedAt.Format("20060102_150405"), extension(format))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create report file")
	}
	defer f.Close()

	if err := Render(f, format, rep); err != nil {
		return "", errors.Wrapf(err, "render %s report", format)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "flush report file")
	}
	return path, nil
}

func extension(format string) string {
	switch format {
	case "json":
		return "json"
	case "markdown", "md":
		return "md"
	case "html":
		return "html"
	default:
		return "txt"
	}
}
