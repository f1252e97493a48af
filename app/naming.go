package app

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const outputSuffix = "-output"

var reExtension = regexp.MustCompile(`(\.[\w-]+)$`)

// OutputName derives the published file name from a source URL: the last
// path segment with "-output" inserted before the extension. index is used
// only when the URL has no usable segment.
//
//	https://host/a/b/photo.png?w=1 -> photo-output.png
//	https://host/a/b/photo         -> photo-output
//	https://host/                  -> image-<index>-output
func OutputName(sourceURL string, index int) string {
	stem, ext := splitOutputName(sourceURL, index)
	return stem + outputSuffix + ext
}

// RowOutputNames names every source of one row. A repeated name gets the
// source index appended to its stem so no two outputs share a storage key.
//
//	h1/photo.png, h2/photo.png -> photo-output.png, photo-1-output.png
func RowOutputNames(sources []string) []string {
	names := make([]string, len(sources))
	taken := make(map[string]bool, len(sources))
	for i, src := range sources {
		stem, ext := splitOutputName(src, i)
		name := stem + outputSuffix + ext
		for n := i; taken[name]; n++ {
			name = fmt.Sprintf("%s-%d%s%s", stem, n, outputSuffix, ext)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func splitOutputName(sourceURL string, index int) (stem, ext string) {
	name := ""
	if u, err := url.Parse(sourceURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("image-%d", index), ""
	}
	// keep names safe for storage keys and multipart filenames
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' {
			return '_'
		}
		return r
	}, name)

	if loc := reExtension.FindStringIndex(name); loc != nil && loc[0] > 0 {
		return name[:loc[0]], name[loc[0]:]
	}
	return name, ""
}
