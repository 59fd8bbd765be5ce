// Package version reports the build of the running binary. Values are set
// at link time, falling back to the VCS stamp embedded by the Go toolchain:
//
//	go build -ldflags "-X github.com/kbukum/medscribe/version.Version=1.4.0" ./cmd/medscribe
package version
