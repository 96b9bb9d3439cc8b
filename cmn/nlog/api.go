package nlog

import (
	"flag"
	"time"

	"github.com/banyanmesh/core/cmn/mono"
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
	flset.StringVar(&logDir, "log_dir", "", "directory to write log files (empty: stderr only)")
}

// SetLogDir configures the log directory outside of flag parsing (tests,
// embedded use).
func SetLogDir(dir string) {
	mu.Lock()
	logDir = dir
	mu.Unlock()
}

func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }

// Flush writes out any buffered log lines; when exit is true it also closes
// the underlying files (used on fatal shutdown).
func Flush(exit ...bool) {
	initOnce.Do(initFiles)
	ex := len(exit) > 0 && exit[0]
	for _, n := range nlogs {
		if n == nil {
			continue
		}
		n.flush()
		if ex && n.file != nil {
			n.file.Sync()
			n.file.Close()
		}
	}
}

// Since returns, over all severity logs, the longest time since a log
// was last written (the maximum of the per-severity durations).
func Since() time.Duration {
	initOnce.Do(initFiles)
	now := mono.NanoTime()
	var max time.Duration
	for _, n := range nlogs {
		if n == nil {
			continue
		}
		if d := n.since(now); d > max {
			max = d
		}
	}
	return max
}
