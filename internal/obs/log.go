package obs

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	minLevel atomic.Int32
)

const (
	levelDebug int32 = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int32{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

func init() {
	minLevel.Store(levelInfo)
}

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetLevel sets the minimum level emitted by Debug/Info/Warn/Error. Unknown
// names leave the level unchanged and return false.
func SetLevel(name string) bool {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return false
	}
	minLevel.Store(lvl)
	return true
}

func Debug(msg string, fields map[string]any) { emit(levelDebug, "debug", msg, fields) }
func Info(msg string, fields map[string]any)  { emit(levelInfo, "info", msg, fields) }
func Warn(msg string, fields map[string]any)  { emit(levelWarn, "warn", msg, fields) }
func Error(msg string, fields map[string]any) { emit(levelError, "error", msg, fields) }

func emit(lvl int32, level, msg string, fields map[string]any) {
	if lvl < minLevel.Load() {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	LogRequest(entry)
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
