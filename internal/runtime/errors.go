package runtime

import "github.com/fastsocket/fastsocket/internal/apperr"

// errKind renders err's apperr.Kind as a metric label, falling back to
// "unknown" for errors this package didn't originate.
func errKind(err error) string {
	if k, ok := apperr.KindOf(err); ok {
		return k.String()
	}
	return "unknown"
}
