package model

import "time"

// Timestamp is wall-clock microseconds since the Unix epoch.
type Timestamp int64

func Now() Timestamp { return Timestamp(time.Now().UnixMicro()) }

func (t Timestamp) Time() time.Time { return time.UnixMicro(int64(t)) }

func (t Timestamp) Before(o Timestamp) bool { return t < o }
