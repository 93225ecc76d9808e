// Package log logs to stdout and, after Init, to daily files.
//
// Logs, errors and events each go to their own directory. Events are
// records of notable operations (e.g. a rewrite of a container), with
// values encoded in toon format.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	logFile    *dailyFile
	errorsFile *dailyFile
	eventsFile *dailyFile

	// if true, Verbosef() will log messages
	Verbose bool

	// where Logf() prints, nil means os.Stdout
	Output io.Writer
)

// dailyFile appends to <dir>/<YYYY-MM-DD>.txt. A new file is started
// when the day (in UTC) changes. Methods are safe on nil receiver.
type dailyFile struct {
	dir string

	mu  sync.Mutex
	day string
	f   *os.File
}

func (d *dailyFile) write(p []byte) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if d.f != nil && d.day != day {
		_ = d.f.Close()
		d.f = nil
	}
	if d.f == nil {
		if err := os.MkdirAll(d.dir, 0755); err != nil {
			return err
		}
		path := filepath.Join(d.dir, day+".txt")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		d.f = f
		d.day = day
	}
	_, err := d.f.Write(p)
	return err
}

func (d *dailyFile) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f != nil {
		_ = d.f.Sync()
		_ = d.f.Close()
		d.f = nil
	}
}

type Config struct {
	// directory with "log", "errors" and "events" sub-directories
	Dir string
}

// Init enables logging to daily files in config.Dir.
// Without Init we only log to Output.
func Init(config *Config) {
	logFile = &dailyFile{dir: filepath.Join(config.Dir, "log")}
	errorsFile = &dailyFile{dir: filepath.Join(config.Dir, "errors")}
	// files are only created on first write so if there are
	// no events, there's no events file
	eventsFile = &dailyFile{dir: filepath.Join(config.Dir, "events")}
}

// Close closes log files. Logging after Close only goes to Output.
func Close() {
	for _, d := range []**dailyFile{&logFile, &errorsFile, &eventsFile} {
		(*d).close()
		*d = nil
	}
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	out := Output
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprint(out, s)
	_ = logFile.write([]byte(s))
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

// callstack returns "file:line" of callers, one per line
func callstack(skip int) string {
	var callers [32]uintptr
	n := runtime.Callers(skip+2, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(frame.File + ":" + strconv.Itoa(frame.Line))
	}
	return sb.String()
}

// Errorf logs an error message along with the callstack
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	s = strings.TrimSuffix(s, "\n") + "\n" + callstack(1) + "\n"
	Logf("%s", s)
	_ = errorsFile.write([]byte(s))
}

// keyToStr converts event key to string, panics if it's not a simple type
func keyToStr(v any) string {
	switch kind := reflect.TypeOf(v).Kind(); kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer, reflect.Func:
		panic(fmt.Sprintf("event key is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// marshalEvent formats an event as:
// "--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n${data}\n"
func marshalEvent(name string, t time.Time, d []byte) []byte {
	res := fmt.Appendf(nil, "--- %d %d %s\n", len(d), t.UnixMilli(), name)
	if len(d) == 0 {
		return res
	}
	res = append(res, d...)
	if d[len(d)-1] != '\n' {
		res = append(res, '\n')
	}
	return res
}

// Event logs an event with key / value pairs to the events log.
// A no-op if Init() wasn't called.
func Event(name string, vals ...any) {
	n := len(vals)
	if n%2 != 0 {
		panic(fmt.Sprintf("Event('%s'): odd number of values (%d)", name, n))
	}
	if eventsFile == nil {
		return
	}
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			m[keyToStr(vals[i])] = vals[i+1]
		}
		var err error
		if d, err = toon.Marshal(m); err != nil {
			Errorf("Event('%s'): %s\n", name, err)
			return
		}
	}
	_ = eventsFile.write(marshalEvent(name, time.Now().UTC(), d))
}

// EventWithDuration is Event with "durmicro" value set to dur in microseconds
func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}
