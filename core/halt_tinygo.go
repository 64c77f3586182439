//go:build tinygo

package core

func defaultHalt(reason string) {
	for {
		// halt
	}
}
