// Package fstype holds the FilesystemType enumeration used by both the
// mount driver (C6) and the storage modules (C7), kept separate from
// package storage so the two can import each other's neighbor without a
// cycle.
package fstype

import "fmt"

// FilesystemType enumerates the filesystem kinds a staged volume can be
// formatted/mounted as.
type FilesystemType string

const (
	Ext2    FilesystemType = "ext2"
	Ext3    FilesystemType = "ext3"
	Ext4    FilesystemType = "ext4"
	XFS     FilesystemType = "xfs"
	NFS     FilesystemType = "nfs"
	ZFS     FilesystemType = "zfs"
	TmpFs   FilesystemType = "tmpfs"
	Bind    FilesystemType = "bind"
	Unknown FilesystemType = "unknown"
)

// ParseFilesystemType decodes the CSI "fsType" parameter, defaulting to Ext4
// per spec.md §6 when empty.
func ParseFilesystemType(s string) FilesystemType {
	if s == "" {
		return Ext4
	}
	switch FilesystemType(s) {
	case Ext2, Ext3, Ext4, XFS, NFS, ZFS, TmpFs, Bind:
		return FilesystemType(s)
	default:
		return Unknown
	}
}

// MountType returns the `-t` argument to `mount`, or ("", false) for
// filesystem kinds `mount` is not told the type of (Bind, ZFS, Unknown).
func (f FilesystemType) MountType() (string, bool) {
	switch f {
	case Bind, ZFS, Unknown:
		return "", false
	default:
		return string(f), true
	}
}

// Mkfs returns the `mkfs.*` tool for this filesystem, or ("", false) when
// formatting is not supported (only the ext family and xfs are).
func (f FilesystemType) Mkfs() (string, bool) {
	switch f {
	case Ext2, Ext3, Ext4, XFS:
		return fmt.Sprintf("mkfs.%s", f), true
	default:
		return "", false
	}
}

// MountOptions returns the `-o` argument to `mount`, or ("", false) when
// none apply. Bind mounts always pass "-o bind".
func (f FilesystemType) MountOptions() (string, bool) {
	if f == Bind {
		return "bind", true
	}
	return "", false
}
