package version

// Name is the product name used in HTTP headers, mDNS records, and the UI.
const Name = "OpenSentry"

// Number is the build version. Overridable at link time:
//
//	-ldflags "-X github.com/Sbussiso/OpenSentry/internal/version.Number=1.2.3"
//
// The OPENSENTRY_VERSION environment variable takes precedence at runtime.
var Number = "0.1.0"
