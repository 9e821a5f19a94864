//go:build !linux

package storage

func filesystemType(string) (string, error) {
	return "", errDetectUnsupported
}
