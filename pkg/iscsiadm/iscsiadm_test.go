package iscsiadm

import (
	"context"
	"testing"

	"github.com/fenio/zed-csi/pkg/faketransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTarget(t *testing.T) {
	assert.Equal(t, "iqn.2020.org.ex:a:tank-csi-pvc-1", GetTarget("iqn.2020.org.ex:a", "tank/csi/pvc-1"))
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/disk/by-path/ip-10.0.0.1:3260:3260-iscsi-iqn.x-lun-0", DevicePath("10.0.0.1:3260", "iqn.x"))
}

func TestSessionsNonZeroExitIsEmpty(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("iscsiadm -m session", "iscsiadm: No active sessions.", 21)

	d := New(ft)
	sessions, err := d.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionsParse(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("iscsiadm -m session", "tcp: [1] 10.0.0.1:3260,1 iqn.2020.org.ex:a:tank-csi-pvc-1 (non-flash)", 0)

	d := New(ft)
	sessions, err := d.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "10.0.0.1", sessions[0].IP)
	assert.Equal(t, "3260", sessions[0].Port)
	assert.Equal(t, "iqn.2020.org.ex:a:tank-csi-pvc-1", sessions[0].IQN)
}

func TestLoginIdempotent(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("iscsiadm -m session", "tcp: [1] 10.0.0.1:3260,1 iqn.2020.org.ex:a:tank-csi-pvc-1 (non-flash)", 0)

	d := New(ft)
	err := d.Login(context.Background(), "iqn.2020.org.ex:a:tank-csi-pvc-1", "10.0.0.1:3260")
	require.NoError(t, err)
	assert.Len(t, ft.Calls(), 1) // only the session check, no --login issued
}

func TestLoginFresh(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("iscsiadm -m session", "", 21)
	ft.Expect("iscsiadm --mode node --targetname 'iqn.x' --portal '10.0.0.1:3260' --login", "", 0)

	d := New(ft)
	err := d.Login(context.Background(), "iqn.x", "10.0.0.1:3260")
	require.NoError(t, err)
}

func TestLogoutNonFatal(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("iscsiadm --mode node --targetname 'iqn.x' --portal '10.0.0.1:3260' --logout", "busy", 15)

	d := New(ft)
	d.Logout(context.Background(), "iqn.x", "10.0.0.1:3260") // must not panic or need error handling
	assert.Len(t, ft.Calls(), 1)
}

func TestWaitForDiskSucceedsImmediately(t *testing.T) {
	ft := faketransport.New()
	ft.Expect("test -b '/dev/disk/by-path/ip-10.0.0.1:3260:3260-iscsi-iqn.x-lun-0'", "", 0)

	d := New(ft)
	device, err := d.WaitForDisk(context.Background(), "iqn.x", "10.0.0.1:3260")
	require.NoError(t, err)
	assert.Equal(t, "/dev/disk/by-path/ip-10.0.0.1:3260:3260-iscsi-iqn.x-lun-0", device)
	assert.Len(t, ft.Calls(), 1)
}
