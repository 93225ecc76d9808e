//go:build !unix && !windows

package container

func isSharingViolation(err error) bool {
	return false
}
