// Package logging provides the component-tagged logger used across frago's
// internal packages: CDP session I/O, tab management, recipe execution, and
// run-store bookkeeping all log through a ComponentLogger so operators can
// grep a single run's output by component.
package logging

import (
	"fmt"
	"log"

	"github.com/fatih/color"
)

// LogLevel is one of the four severities a ComponentLogger can emit.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ComponentLoggerConfig configures a ComponentLogger. EnabledLevels defaults
// to all four levels when left nil.
type ComponentLoggerConfig struct {
	ComponentName string
	Color         color.Attribute
	EnabledLevels []LogLevel
}

// ComponentLogger prefixes every line with a colorized component tag.
type ComponentLogger struct {
	name    string
	color   *color.Color
	enabled map[LogLevel]bool
}

// NewComponentLogger builds a logger for one named component (e.g. "cdp",
// "recipe-runner"). Construct one per subsystem and hold onto it rather than
// building one per call.
func NewComponentLogger(cfg ComponentLoggerConfig) *ComponentLogger {
	levels := cfg.EnabledLevels
	if len(levels) == 0 {
		levels = []LogLevel{DEBUG, INFO, WARN, ERROR}
	}
	enabled := make(map[LogLevel]bool, len(levels))
	for _, lvl := range levels {
		enabled[lvl] = true
	}

	attr := cfg.Color
	if attr == 0 {
		attr = color.FgWhite
	}

	return &ComponentLogger{
		name:    cfg.ComponentName,
		color:   color.New(attr),
		enabled: enabled,
	}
}

func (c *ComponentLogger) log(level LogLevel, format string, args ...interface{}) {
	if !c.enabled[level] {
		return
	}
	tag := c.color.Sprintf("[%s]", c.name)
	msg := fmt.Sprintf(format, args...)
	log.Printf("%s %s: %s", tag, level, msg)
}

func (c *ComponentLogger) Debug(format string, args ...interface{}) { c.log(DEBUG, format, args...) }
func (c *ComponentLogger) Info(format string, args ...interface{})  { c.log(INFO, format, args...) }
func (c *ComponentLogger) Warn(format string, args ...interface{})  { c.log(WARN, format, args...) }
func (c *ComponentLogger) Error(format string, args ...interface{}) { c.log(ERROR, format, args...) }

// Named loggers for frago's core subsystems. Components fetch their logger
// once at construction time rather than building a fresh ComponentLogger per
// call site.
var (
	CDPLogger    = NewComponentLogger(ComponentLoggerConfig{ComponentName: "cdp", Color: color.FgCyan})
	TabLogger    = NewComponentLogger(ComponentLoggerConfig{ComponentName: "tabs", Color: color.FgBlue})
	RunLogger    = NewComponentLogger(ComponentLoggerConfig{ComponentName: "run", Color: color.FgGreen})
	RecipeLogger = NewComponentLogger(ComponentLoggerConfig{ComponentName: "recipe", Color: color.FgYellow})
	EnvLogger    = NewComponentLogger(ComponentLoggerConfig{ComponentName: "env", Color: color.FgMagenta})
)

// LoggerFactory resolves a named logger by component tag, falling back to a
// generic logger for anything it doesn't recognize by name.
type LoggerFactory struct{}

func (f *LoggerFactory) GetLogger(component string) *ComponentLogger {
	switch component {
	case "CDP":
		return CDPLogger
	case "TABS":
		return TabLogger
	case "RUN":
		return RunLogger
	case "RECIPE":
		return RecipeLogger
	case "ENV":
		return EnvLogger
	default:
		return NewComponentLogger(ComponentLoggerConfig{ComponentName: component})
	}
}

// LogInfo and LogError are one-off convenience wrappers for call sites that
// don't want to hold onto a ComponentLogger reference.
func LogInfo(component, format string, args ...interface{}) {
	(&LoggerFactory{}).GetLogger(component).Info(format, args...)
}

func LogError(component, format string, args ...interface{}) {
	(&LoggerFactory{}).GetLogger(component).Error(format, args...)
}
