package job

import "time"

const (
	timeoutForTest = time.Second
	tickForTest    = 5 * time.Millisecond
)
