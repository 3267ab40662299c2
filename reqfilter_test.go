package reqfilter_test

import "github.com/AdguardTeam/golibs/logutil/slogutil"

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()
