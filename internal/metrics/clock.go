package metrics

import "time"

// clockNow is swapped in tests to pin collection timestamps.
var clockNow = time.Now
