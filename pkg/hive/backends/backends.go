// Package backends wires every built-in driver into a hive.Registry.
// Programs that only need one backend can register its constructor
// directly and avoid linking the others.
package backends

import (
	"github.com/tonimelisma/hive/pkg/hive"
	"github.com/tonimelisma/hive/pkg/hive/ipfs"
	"github.com/tonimelisma/hive/pkg/hive/native"
	"github.com/tonimelisma/hive/pkg/hive/onedrive"
	"github.com/tonimelisma/hive/pkg/hive/owncloud"
	"github.com/tonimelisma/hive/pkg/hive/s3"
)

// Registry returns a registry with all built-in backends registered.
func Registry(opts ...hive.RegistryOption) *hive.Registry {
	r := hive.NewRegistry(opts...)

	r.Register(hive.BackendNative, native.New)
	r.Register(hive.BackendIPFS, ipfs.New)
	r.Register(hive.BackendOneDrive, onedrive.New)
	r.Register(hive.BackendOwnCloud, owncloud.New)
	r.Register(hive.BackendS3, s3.New)

	return r
}
