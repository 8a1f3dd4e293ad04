package codec

import (
	"path"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var supportedExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "bmp": {}, "tif": {}, "tiff": {},
}

var supportedContentTypes = map[string]struct{}{
	"image/jpeg": {}, "image/jpg": {}, "image/png": {}, "image/webp": {},
	"image/gif": {}, "image/bmp": {}, "image/x-ms-bmp": {}, "image/tiff": {},
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func IsSupportedExtension(name string) bool {
	_, ok := supportedExtensions[Extension(name)]
	return ok
}

func IsSupportedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	_, ok := supportedContentTypes[ct]
	return ok
}
