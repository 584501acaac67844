package carve

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultMaxSize = 10_000_000

// WriteConfig writes a foremost/scalpel configuration with one rule per
// line: extension, case sensitivity, max size, header, footer.
func WriteConfig(path string, types []FileType) error {
	if len(types) == 0 {
		return errors.New("carve: no file types configured")
	}
	var b strings.Builder
	for i, ft := range types {
		if ft.Extension == "" || ft.Header == "" {
			return fmt.Errorf("carve: file type %d needs an extension and a header", i)
		}
		size := ft.MaxSize
		if size <= 0 {
			size = defaultMaxSize
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join([]string{
			ft.Extension,
			"y",
			strconv.FormatInt(size, 10),
			ft.Header,
			ft.Footer,
		}, "\t"))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write carver config: %w", err)
	}
	return nil
}
