//go:build windows
// +build windows

package main

import (
	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/x/windows"
)

func newAPI() (winevt.API, error) {
	return windows.New()
}
