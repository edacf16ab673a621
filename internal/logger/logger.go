package logger

// Logging is designed to look and feel like esbuild's own terminal output.
// Messages are streamed as they happen, colored when stderr is a terminal,
// and the error count is limited by default.

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

type Log struct {
	AddMsg    func(Msg)
	HasErrors func() bool
	Done      func() []Msg

	// Callers check this before formatting expensive debug output
	Level LogLevel
}

type LogLevel int8

const (
	LevelNone LogLevel = iota
	LevelVerbose
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelSilent
)

type MsgKind uint8

const (
	Error MsgKind = iota
	Warning
	Info
	Debug
	Verbose
)

func (kind MsgKind) String() string {
	switch kind {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	case Verbose:
		return "verbose"
	default:
		panic("Internal error")
	}
}

// The minimum level at which a message of this kind is printed
func (kind MsgKind) level() LogLevel {
	switch kind {
	case Error:
		return LevelError
	case Warning:
		return LevelWarning
	case Info:
		return LevelInfo
	case Debug:
		return LevelDebug
	default:
		return LevelVerbose
	}
}

type Msg struct {
	Kind       MsgKind
	Text       string
	PluginName string
	Notes      []string
}

func ParseLogLevel(text string) (LogLevel, bool) {
	switch text {
	case "verbose":
		return LevelVerbose, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning":
		return LevelWarning, true
	case "error":
		return LevelError, true
	case "silent":
		return LevelSilent, true
	}
	return LevelNone, false
}

func plural(prefix string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, prefix)
	}
	return fmt.Sprintf("%d %ss", count, prefix)
}

func errorAndWarningSummary(errors int, warnings int) string {
	switch {
	case errors == 0:
		return plural("warning", warnings)
	case warnings == 0:
		return plural("error", errors)
	default:
		return fmt.Sprintf("%s and %s",
			plural("warning", warnings),
			plural("error", errors))
	}
}

type TerminalInfo struct {
	UseColorEscapes bool
}

type StderrColor uint8

const (
	ColorIfTerminal StderrColor = iota
	ColorNever
	ColorAlways
)

type StderrOptions struct {
	ErrorLimit int
	Color      StderrColor
	LogLevel   LogLevel
}

func NewStderrLog(options StderrOptions) Log {
	var mutex sync.Mutex
	var msgs []Msg
	terminalInfo := GetTerminalInfo(os.Stderr)
	errors := 0
	warnings := 0
	errorLimitWasHit := false

	switch options.Color {
	case ColorNever:
		terminalInfo.UseColorEscapes = false
	case ColorAlways:
		terminalInfo.UseColorEscapes = SupportsColorEscapes
	}

	return Log{
		Level: options.LogLevel,
		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			msgs = append(msgs, msg)

			switch msg.Kind {
			case Error:
				errors++
			case Warning:
				warnings++
			}

			// Be silent if we're past the limit so we don't flood the terminal
			if errorLimitWasHit {
				return
			}

			if options.LogLevel <= msg.Kind.level() {
				writeStringWithColor(os.Stderr, msg.String(terminalInfo))
			}

			// Silence further output if we reached the error limit
			if options.ErrorLimit != 0 && errors >= options.ErrorLimit {
				errorLimitWasHit = true
				if options.LogLevel <= LevelError {
					writeStringWithColor(os.Stderr, fmt.Sprintf(
						"%s reached (disable error limit with --error-limit=0)\n", errorAndWarningSummary(errors, warnings)))
				}
			}
		},
		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return errors > 0
		},
		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()

			// Print out a summary if the error limit wasn't hit
			if !errorLimitWasHit && options.LogLevel <= LevelInfo && (warnings != 0 || errors != 0) {
				writeStringWithColor(os.Stderr, fmt.Sprintf("%s\n", errorAndWarningSummary(errors, warnings)))
			}

			return append([]Msg{}, msgs...)
		},
	}
}

func PrintErrorToStderr(osArgs []string, text string) {
	PrintMessageToStderr(osArgs, Msg{Kind: Error, Text: text})
}

func PrintMessageToStderr(osArgs []string, msg Msg) {
	options := StderrOptions{}

	// Implement a mini argument parser so these options always work even if we
	// haven't yet gotten to the general-purpose argument parsing code
	for _, arg := range osArgs {
		switch arg {
		case "--color=false":
			options.Color = ColorNever
		case "--color=true":
			options.Color = ColorAlways
		case "--log-level=silent":
			options.LogLevel = LevelSilent
		}
	}

	log := NewStderrLog(options)
	log.AddMsg(msg)
	log.Done()
}

// NewDeferLog collects messages without printing them. Messages at or above
// the given level are kept.
func NewDeferLog(level LogLevel) Log {
	var msgs []Msg
	var mutex sync.Mutex
	var hasErrors bool

	return Log{
		Level: level,
		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			if msg.Kind == Error {
				hasErrors = true
			}
			if level <= msg.Kind.level() {
				msgs = append(msgs, msg)
			}
		},
		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return hasErrors
		},
		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()
			return append([]Msg{}, msgs...)
		},
	}
}

// NewNopLog drops everything. It is the zero configuration for library users.
func NewNopLog() Log {
	return Log{
		Level:     LevelSilent,
		AddMsg:    func(Msg) {},
		HasErrors: func() bool { return false },
		Done:      func() []Msg { return nil },
	}
}

const colorReset = "\033[0m"
const colorRed = "\033[31m"
const colorGreen = "\033[32m"
const colorBlue = "\033[34m"
const colorMagenta = "\033[35m"
const colorDim = "\033[37m"
const colorBold = "\033[1m"
const colorResetBold = "\033[0;1m"

func (msg Msg) String(terminalInfo TerminalInfo) string {
	kind := msg.Kind.String()
	kindColor := colorRed

	switch msg.Kind {
	case Warning:
		kindColor = colorMagenta
	case Info:
		kindColor = colorGreen
	case Debug:
		kindColor = colorBlue
	case Verbose:
		kindColor = colorDim
	}

	text := msg.Text
	if msg.PluginName != "" {
		text = fmt.Sprintf("[plugin %s] %s", msg.PluginName, text)
	}

	sb := strings.Builder{}
	if terminalInfo.UseColorEscapes {
		sb.WriteString(fmt.Sprintf("%s%s%s: %s%s%s\n",
			colorBold, kindColor, kind,
			colorResetBold, text,
			colorReset))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %s\n", kind, text))
	}

	for _, note := range msg.Notes {
		if terminalInfo.UseColorEscapes {
			sb.WriteString(fmt.Sprintf("  %snote:%s %s\n", colorBold, colorReset, note))
		} else {
			sb.WriteString(fmt.Sprintf("  note: %s\n", note))
		}
	}

	return sb.String()
}

func (log Log) AddError(text string) {
	log.AddMsg(Msg{Kind: Error, Text: text})
}

func (log Log) AddWarning(text string) {
	log.AddMsg(Msg{Kind: Warning, Text: text})
}

func (log Log) AddInfo(text string) {
	log.AddMsg(Msg{Kind: Info, Text: text})
}

func (log Log) AddDebug(text string) {
	log.AddMsg(Msg{Kind: Debug, Text: text})
}

func (log Log) AddVerbose(text string) {
	log.AddMsg(Msg{Kind: Verbose, Text: text})
}
