// Package permission tracks whether the configured music paths can actually
// be read and written. Mounts come and go, and access can be revoked from
// under a running process, so the state is probed rather than assumed.
package permission

import (
	"golang.org/x/sys/unix"

	"go.senan.xyz/chorus/stream"
)

type Permissions struct {
	CanReadAudioFiles  bool
	CanWriteAudioFiles bool
}

type Repository struct {
	paths []string
	state *stream.Var[Permissions]
}

func NewRepository(paths []string) *Repository {
	return &Repository{
		paths: paths,
		state: stream.NewVar(probe(paths)),
	}
}

// Permissions replays the last probed state and emits again after every
// Refresh.
func (r *Repository) Permissions() stream.Stream[Permissions] {
	return r.state
}

func (r *Repository) Current() Permissions {
	return r.state.Latest()
}

// Refresh probes the music paths again and publishes the result.
func (r *Repository) Refresh() Permissions {
	perms := probe(r.paths)
	r.state.Set(perms)
	return perms
}

func probe(paths []string) Permissions {
	if len(paths) == 0 {
		return Permissions{}
	}
	perms := Permissions{CanReadAudioFiles: true, CanWriteAudioFiles: true}
	for _, path := range paths {
		if unix.Access(path, unix.R_OK|unix.X_OK) != nil {
			perms.CanReadAudioFiles = false
		}
		if unix.Access(path, unix.W_OK) != nil {
			perms.CanWriteAudioFiles = false
		}
	}
	return perms
}
