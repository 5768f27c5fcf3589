package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every accepted entry out to its appenders. Subloggers share the appender slice of
// their parent as it was when they were created.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
}

// LogEntry is a zapcore Entry together with its structured fields.
type LogEntry struct {
	zapcore.Entry
	fields []zapcore.Field
}

// callerSkip is the number of frames between getCaller and the caller of a public log method:
// getCaller, newEntry, emit and the log method itself.
const callerSkip = 4

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Level() zapcore.Level {
	return imp.level.Get().AsZap()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return register(&impl{name, NewAtomicLevelAt(imp.level.Get()), imp.inUTC, imp.appenders})
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// AsZap builds a zap logger writing to stdout plus every appender that is itself a
// zapcore.Core, such as the observer used by tests. It follows GlobalLogLevel.
func (imp *impl) AsZap() *zap.SugaredLogger {
	config := NewZapLoggerConfig()
	config.Level = GlobalLogLevel
	base := zap.Must(config.Build())
	for _, appender := range imp.appenders {
		core, ok := appender.(zapcore.Core)
		if !ok {
			continue
		}
		base = base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return base.Sugar().Named(imp.name)
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.AsZap().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.AsZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.AsZap().WithOptions(opts...)
}

// enabled reports whether an entry at level passes. The global debug flag opens every logger.
func (imp *impl) enabled(level Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	return level >= imp.level.Get()
}

// emit builds and writes one entry unless it is filtered out. force bypasses the level check.
// message is only evaluated for entries that are written.
func (imp *impl) emit(force bool, level Level, message func() string, keysAndValues []interface{}) {
	if !force && !imp.enabled(level) {
		return
	}
	entry := imp.newEntry(level)
	entry.Message = message()
	entry.fields = toFields(keysAndValues)
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) newEntry(level Level) *LogEntry {
	return &LogEntry{Entry: zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Caller:     getCaller(),
	}}
}

// toFields pairs up keys with the value after them. A trailing key without a value is kept with
// an error in place of the value.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		var key string
		if s, ok := keysAndValues[i].(fmt.Stringer); ok {
			key = s.String()
		} else {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func sprint(args []interface{}) func() string {
	return func() string { return fmt.Sprint(args...) }
}

func sprintf(template string, args []interface{}) func() string {
	return func() string { return fmt.Sprintf(template, args...) }
}

func literal(msg string) func() string {
	return func() string { return msg }
}

func (imp *impl) Debug(args ...interface{}) { imp.emit(false, DEBUG, sprint(args), nil) }
func (imp *impl) Info(args ...interface{}) { imp.emit(false, INFO, sprint(args), nil) }
func (imp *impl) Warn(args ...interface{}) { imp.emit(false, WARN, sprint(args), nil) }
func (imp *impl) Error(args ...interface{}) { imp.emit(false, ERROR, sprint(args), nil) }

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(false, DEBUG, sprintf(template, args), nil)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(false, INFO, sprintf(template, args), nil)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(false, WARN, sprintf(template, args), nil)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(false, ERROR, sprintf(template, args), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(false, DEBUG, literal(msg), keysAndValues)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(false, INFO, literal(msg), keysAndValues)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(false, WARN, literal(msg), keysAndValues)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(false, ERROR, literal(msg), keysAndValues)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	imp.emit(IsDebugMode(ctx), DEBUG, sprint(args), nil)
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.emit(IsDebugMode(ctx), DEBUG, sprintf(template, args), nil)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.emit(IsDebugMode(ctx), DEBUG, literal(msg), keysAndValues)
}

// The Fatal variants write at ERROR regardless of level and then exit.
func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(true, ERROR, sprint(args), nil)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emit(true, ERROR, sprintf(template, args), nil)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emit(true, ERROR, literal(msg), keysAndValues)
	os.Exit(1)
}

// getCaller returns the file and line of the code that called a public log method.
func getCaller() zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
