//go:build darwin || freebsd || netbsd || openbsd

package logger

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TIOCGETA
