package carve

import (
	"sort"
	"strings"
)

// Tool names.
const (
	ToolForemost = "foremost"
	ToolScalpel  = "scalpel"
)

// Layout under a run's output directory.
const (
	CarvedDir  = "carved"
	ConfigFile = "carver.conf"
	AuditFile  = "audit.txt"
)

// FileType is one carver signature rule. Header and Footer use the carver's
// escaped notation (for example `\xff\xd8\xff`).
type FileType struct {
	Extension string
	Header    string
	Footer    string
	MaxSize   int64
}

var builtinTypes = map[string]FileType{
	"jpg":  {Extension: "jpg", Header: `\xff\xd8\xff`, Footer: `\xff\xd9`, MaxSize: 100_000_000},
	"jpeg": {Extension: "jpeg", Header: `\xff\xd8\xff\xe0`, Footer: `\xff\xd9`, MaxSize: 100_000_000},
	"jpe":  {Extension: "jpe", Header: `\xff\xd8\xff\xe1`, Footer: `\xff\xd9`, MaxSize: 100_000_000},
	"png":  {Extension: "png", Header: `\x89\x50\x4e\x47\x0d\x0a\x1a\x0a`, Footer: `IEND\xae\x42\x60\x82`, MaxSize: 100_000_000},
	"gif":  {Extension: "gif", Header: "GIF8", Footer: `\x00\x3b`, MaxSize: 50_000_000},
	"bmp":  {Extension: "bmp", Header: "BM", MaxSize: 50_000_000},
	"tif":  {Extension: "tif", Header: `II*\x00`, MaxSize: 200_000_000},
	"tiff": {Extension: "tiff", Header: `MM\x00*`, MaxSize: 200_000_000},
	"webp": {Extension: "webp", Header: "RIFF", Footer: "WEBP", MaxSize: 100_000_000},
}

// BuiltinTypeNames lists the file types ResolveTypes understands.
func BuiltinTypeNames() []string {
	names := make([]string, 0, len(builtinTypes))
	for name := range builtinTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTypes maps configured type names to rules, in the given order.
// Unknown names are returned separately. A positive maxSize caps every
// rule's size.
func ResolveTypes(names []string, maxSize int64) ([]FileType, []string) {
	var (
		types   []FileType
		unknown []string
	)
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ft, ok := builtinTypes[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if maxSize > 0 && (ft.MaxSize == 0 || ft.MaxSize > maxSize) {
			ft.MaxSize = maxSize
		}
		types = append(types, ft)
	}
	return types, unknown
}
