//go:build !linux

package timesync

func kernelSynced() (bool, error) {
	return false, ErrUnsupported
}
