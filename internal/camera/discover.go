package camera

import "path/filepath"

// Discover lists the V4L2 capture device nodes present on the host.
func Discover() []string {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil
	}
	return matches
}
