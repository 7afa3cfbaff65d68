package asset

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Namer picks the storage key for a new asset. ext is the lowercased
// extension of the uploaded file including the dot, or "".
type Namer interface {
	Name(ext string) string
}

// XIDNamer names assets with a time-ordered xid. The random and counter
// parts of an xid keep names unique across concurrent uploads.
type XIDNamer struct{}

func (XIDNamer) Name(ext string) string {
	return xid.New().String() + ext
}

type UUIDNamer struct{}

func (UUIDNamer) Name(ext string) string {
	return uuid.NewString() + ext
}

// NamerFor returns the naming policy called name, defaulting to XIDNamer.
func NamerFor(name string) Namer {
	if strings.EqualFold(name, "uuid") {
		return UUIDNamer{}
	}
	return XIDNamer{}
}

var extRegexp = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// extension returns the lowercased extension of hint, or "" if it is not a
// plain alphanumeric extension.
func extension(hint string) string {
	ext := strings.ToLower(filepath.Ext(hint))
	if !extRegexp.MatchString(ext) {
		return ""
	}
	return ext
}
