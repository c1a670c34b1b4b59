// Package all registers the complete analyzer set. Importing it from
// a main package makes every built-in analyzer available in the
// registry. Question-driven analyzers are not included here, they are
// registered when the question catalog is loaded.
package all

import (
	_ "www.timesketch.org/golang/timesketch/analyzers"
	_ "www.timesketch.org/golang/timesketch/analyzers/authentication"
	_ "www.timesketch.org/golang/timesketch/analyzers/features"
)
