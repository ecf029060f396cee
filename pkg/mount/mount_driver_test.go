package mount

import (
	"context"
	"testing"

	"github.com/fenio/zed-csi/pkg/faketransport"
	"github.com/fenio/zed-csi/pkg/fstype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountSuccess(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("mkdir -p '/var/lib/kubelet/staging'", "", 0)
	ft.Expect("mount -t ext4 '/dev/sda' '/var/lib/kubelet/staging'", "", 0)

	d := New(ft)
	err := d.Mount(context.Background(), fstype.Ext4, "/dev/sda", "/var/lib/kubelet/staging")
	require.NoError(t, err)
}

func TestMountIdempotentAlreadyMounted(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("mkdir -p '/staging'", "", 0)
	ft.Expect("mount -t ext4 '/dev/sda' '/staging'", "mount: /staging: already mounted.", 32)

	d := New(ft)
	err := d.Mount(context.Background(), fstype.Ext4, "/dev/sda", "/staging")
	require.NoError(t, err)
}

func TestMountOtherFailureIsError(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("mkdir -p '/staging'", "", 0)
	ft.Expect("mount -t ext4 '/dev/sda' '/staging'", "mount: no such device", 1)

	d := New(ft)
	err := d.Mount(context.Background(), fstype.Ext4, "/dev/sda", "/staging")
	require.Error(t, err)
}

func TestMountBind(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("mkdir -p '/target'", "", 0)
	ft.Expect("mount -o bind '/staging' '/target'", "", 0)

	d := New(ft)
	err := d.Mount(context.Background(), fstype.Bind, "/staging", "/target")
	require.NoError(t, err)
}

func TestUnmountIdempotentNotMounted(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("umount '/staging'", "umount: /staging: not mounted.", 32)

	d := New(ft)
	err := d.Unmount(context.Background(), "/staging")
	require.NoError(t, err)
}

func TestMkfsUnsupportedFilesystem(t *testing.T) {
	ft := faketransport.New()
	d := New(ft)
	err := d.Mkfs(context.Background(), "/dev/sda", fstype.Bind)
	require.Error(t, err)
}

func TestMkfsSupported(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("mkfs.ext4 '/dev/sda'", "", 0)

	d := New(ft)
	err := d.Mkfs(context.Background(), "/dev/sda", fstype.Ext4)
	require.NoError(t, err)
}

func TestGetBlockDevice(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("lsblk -J -o name,rm,type,size,fstype,ro '/dev/sda'",
		`{"blockdevices": [{"name":"sda","rm":"0","type":"disk","size":"1G","fstype":"ext4","ro":"0"}]}`, 0)

	d := New(ft)
	dev, err := d.GetBlockDevice(context.Background(), "/dev/sda")
	require.NoError(t, err)
	require.NotNil(t, dev)
	assert.Equal(t, "ext4", dev.FSType)
}

func TestGetMountMissingPathReturnsNil(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("findmnt -J -o id,source,target,fstype,label,options,partuuid,avail,size,used '/missing'", "", 1)

	d := New(ft)
	entry, err := d.GetMount(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
