package store

import "time"

// nowFn is a package-level indirection over time.Now so tests can freeze
// the clock without threading a Clock interface through every method.
var nowFn = time.Now
