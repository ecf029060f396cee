package fstype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMountTypeNoneFor(t *testing.T) {
	noType := map[FilesystemType]bool{Bind: true, ZFS: true, Unknown: true}
	for _, f := range []FilesystemType{Ext2, Ext3, Ext4, XFS, NFS, ZFS, TmpFs, Bind, Unknown} {
		_, ok := f.MountType()
		assert.Equal(t, !noType[f], ok, "MountType() presence for %s", f)
	}
}

func TestMkfsOnlyExtAndXFS(t *testing.T) {
	supported := map[FilesystemType]bool{Ext2: true, Ext3: true, Ext4: true, XFS: true}
	for _, f := range []FilesystemType{Ext2, Ext3, Ext4, XFS, NFS, ZFS, TmpFs, Bind, Unknown} {
		_, ok := f.Mkfs()
		assert.Equal(t, supported[f], ok, "Mkfs() presence for %s", f)
	}
}

func TestMountOptionsOnlyBind(t *testing.T) {
	for _, f := range []FilesystemType{Ext2, Ext3, Ext4, XFS, NFS, ZFS, TmpFs, Bind, Unknown} {
		opts, ok := f.MountOptions()
		if f == Bind {
			assert.True(t, ok)
			assert.Equal(t, "bind", opts)
		} else {
			assert.False(t, ok)
		}
	}
}

func TestParseFilesystemTypeDefaultsToExt4(t *testing.T) {
	assert.Equal(t, Ext4, ParseFilesystemType(""))
	assert.Equal(t, XFS, ParseFilesystemType("xfs"))
	assert.Equal(t, Unknown, ParseFilesystemType("btrfs"))
}
