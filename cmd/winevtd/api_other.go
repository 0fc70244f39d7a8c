//go:build !windows
// +build !windows

package main

import (
	"errors"

	"github.com/runreveal/winevt"
)

var errUnsupported = errors.New("the Windows Event Log API is only available on windows")

func newAPI() (winevt.API, error) {
	return nil, errUnsupported
}
