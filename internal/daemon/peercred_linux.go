package daemon

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// peerCredentials reads the connecting process's pid and uid via
// SO_PEERCRED. On any failure it reports the daemon's own identity so the
// context tracker still has something to work with.
func peerCredentials(conn net.Conn) (pid, uid int) {
	pid, uid = os.Getpid(), os.Getuid()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return pid, uid
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return pid, uid
	}
	var cred *unix.Ucred
	var credErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || credErr != nil || cred == nil {
		return pid, uid
	}
	return int(cred.Pid), int(cred.Uid)
}
