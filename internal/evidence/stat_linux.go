package evidence

import (
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// fillStat adds inode and the timestamps os.FileInfo does not expose. statx
// is used for birth time; filesystems that do not record it leave Created zero.
func fillStat(fullPath string, e *Entry) {
	var stx unix.Statx_t
	mask := unix.STATX_INO | unix.STATX_ATIME | unix.STATX_CTIME | unix.STATX_BTIME
	if err := unix.Statx(unix.AT_FDCWD, fullPath, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil {
		return
	}
	if stx.Mask&unix.STATX_INO != 0 {
		e.Inode = strconv.FormatUint(stx.Ino, 10)
	}
	if stx.Mask&unix.STATX_ATIME != 0 {
		e.Times.Accessed = statxTime(stx.Atime)
	}
	if stx.Mask&unix.STATX_CTIME != 0 {
		e.Times.Changed = statxTime(stx.Ctime)
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		e.Times.Created = statxTime(stx.Btime)
	}
}

func statxTime(ts unix.StatxTimestamp) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec)).UTC()
}
