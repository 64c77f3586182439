//go:build !tinygo

package core

func defaultHalt(reason string) {
	panic("halt: " + reason)
}
