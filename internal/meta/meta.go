// Package meta holds build metadata injected at link time, e.g.
//
//	go build -ldflags "-X github.com/nicholas-fedor/tagwatch/internal/meta.Version=v1.2.3"
package meta

var (
	// Version of the binary.
	Version = "v0.0.0-unknown"
	// UserAgent sent to registries.
	UserAgent string
)

func init() {
	UserAgent = "tagwatch/" + Version
}
