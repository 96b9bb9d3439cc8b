// Package nlog is the mesh's logger: buffered, leveled, file-rotating.
// It is the ambient logging concern for every package in this module —
// the teacher never reaches for logrus/zap, and neither do we.
/*
 * Adapted from the aistore cmn/nlog package (nlog.go + api.go). The
 * supporting buffer/rotation plumbing those two files referenced was not
 * present in the retrieved teacher subset; it is rebuilt here (one fixed
 * buffer per severity, written out once it fills) rather than dropped, since logging is load-
 * bearing ambient infrastructure for every other package in this repo.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banyanmesh/core/cmn/mono"
)

const (
	fixedSize   = 64 * 1024
	maxLineSize = 2 * 1024
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

type fixed struct {
	buf  []byte
	woff int
}

func (f *fixed) reset()        { f.woff = 0 }
func (f *fixed) avail() int    { return len(f.buf) - f.woff }
func (f *fixed) length() int   { return f.woff }
func (f *fixed) writeByte(b byte) {
	if f.woff < len(f.buf) {
		f.buf[f.woff] = b
		f.woff++
	}
}
func (f *fixed) writeString(s string) {
	n := copy(f.buf[f.woff:], s)
	f.woff += n
}
func (f *fixed) Write(p []byte) (int, error) {
	n := copy(f.buf[f.woff:], p)
	f.woff += n
	return n, nil
}
func (f *fixed) eol() { f.writeByte('\n') }

func (f *fixed) flush(w *os.File) (int, error) {
	if w == nil {
		return 0, nil
	}
	return w.Write(f.buf[:f.woff])
}

type nlog struct {
	file    *os.File
	pw      *fixed
	line    fixed
	last    atomic.Int64
	written atomic.Int64
	sev     severity
	erred   atomic.Bool
	mw      sync.Mutex
}

func newNlog(sev severity) *nlog {
	return &nlog{
		sev:  sev,
		pw:   &fixed{buf: make([]byte, fixedSize)},
		line: fixed{buf: make([]byte, maxLineSize)},
	}
}

func (n *nlog) since(now int64) time.Duration { return time.Duration(now - n.last.Load()) }

func (n *nlog) printf(sev severity, depth int, format string, args ...any) {
	n.mw.Lock()
	defer n.mw.Unlock()
	n.line.reset()
	sprintf(sev, depth+1, format, &n.line, args...)
	n.write(&n.line)
}

// under mw-lock
func (n *nlog) write(line *fixed) {
	buf := line.buf[:line.woff]
	n.pw.Write(buf)
	n.last.Store(mono.NanoTime())
	if n.pw.avail() < maxLineSize {
		n.do(n.pw)
		n.pw.reset()
	}
}

func (n *nlog) do(pw *fixed) {
	if n.erred.Load() || n.file == nil {
		os.Stderr.Write(pw.buf[:pw.woff])
		return
	}
	sz, err := pw.flush(n.file)
	if err != nil {
		n.erred.Store(true)
		os.Stderr.Write(pw.buf[:pw.woff])
		return
	}
	n.written.Add(int64(sz))
	if n.written.Load() >= MaxSize {
		n.rotate(time.Now())
	}
}

func (n *nlog) flush() {
	n.mw.Lock()
	defer n.mw.Unlock()
	if n.pw.length() == 0 {
		return
	}
	n.do(n.pw)
	n.pw.reset()
}

func (n *nlog) rotate(now time.Time) {
	if n.file != nil {
		n.file.Close()
	}
	f, _, err := fcreate(sevName[n.sev], now)
	if err != nil {
		n.erred.Store(true)
		return
	}
	n.file = f
	n.written.Store(0)
	n.erred.Store(false)
	fmt.Fprintf(f, "Started up at %s, host %s, %s for %s/%s\n",
		now.Format("2006/01/02 15:04:05"), host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

var (
	MaxSize int64 = 4 * 1024 * 1024

	sevName = [...]string{"INFO", "WARN", "ERROR"}

	initOnce sync.Once
	nlogs    [3]*nlog

	mu           sync.Mutex
	toStderr     bool
	alsoToStderr bool
	logDir       string
	host, _      = os.Hostname()
	pid          = os.Getpid()
)

func initFiles() {
	for sev := sevInfo; sev <= sevErr; sev++ {
		nlogs[sev] = newNlog(sev)
		if !toStderr && logDir != "" {
			nlogs[sev].rotate(time.Now())
		}
	}
}

func fcreate(tag string, now time.Time) (f *os.File, name string, err error) {
	if logDir == "" {
		return nil, "", nil
	}
	if err = os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", err
	}
	name = fmt.Sprintf("%s.%s.%02d%02d-%02d%02d%02d.%d.log",
		tag, host, now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), pid)
	path := filepath.Join(logDir, name)
	f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	return f, name, err
}

func sprintf(sev severity, depth int, format string, fb *fixed, args ...any) {
	formatHdr(sev, depth+1, fb)
	if format == "" {
		fmt.Fprintln(fb, args...)
	} else {
		fmt.Fprintf(fb, format, args...)
		fb.eol()
	}
}

func formatHdr(sev severity, depth int, fb *fixed) {
	fb.writeByte(sevChar[sev])
	fb.writeByte(' ')
	fb.writeString(time.Now().Format("15:04:05.000000"))
	fb.writeByte(' ')
	_, fn, ln, ok := runtime.Caller(depth + 2)
	if ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		fb.writeString(fn)
		fb.writeByte(':')
		fb.writeString(strconv.Itoa(ln))
		fb.writeByte(' ')
	}
}

func log(sev severity, depth int, format string, args ...any) {
	initOnce.Do(initFiles)
	mu.Lock()
	useStderr := toStderr || alsoToStderr || sev >= sevWarn
	mu.Unlock()

	nlogs[sevInfo].printf(sev, depth+1, format, args...)
	if sev >= sevWarn {
		nlogs[sevErr].printf(sev, depth+1, format, args...)
	}
	if useStderr {
		var fb fixed
		fb.buf = make([]byte, maxLineSize)
		sprintf(sev, depth+1, format, &fb, args...)
		os.Stderr.Write(fb.buf[:fb.woff])
	}
}
