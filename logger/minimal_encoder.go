package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	fg        string
	time      string
	component []string
	id        string
	number    string
	warn      string
	warnBg    string
	err       string
	errBg     string
}

// Gruvbox Dark (warm, muted)
var gruvbox = palette{
	fg:        "\x1b[38;5;223m",
	time:      "\x1b[38;5;108m",
	component: []string{"\x1b[38;5;208m", "\x1b[38;5;214m"},
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;175m",
	warn:      "\x1b[38;5;214m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;88m",
}

// Everforest Dark (forest greens)
var everforest = palette{
	fg:        "\x1b[38;5;223m",
	time:      "\x1b[38;5;107m",
	component: []string{"\x1b[38;5;108m", "\x1b[38;5;65m", "\x1b[38;5;208m"},
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;108m",
	warn:      "\x1b[38;5;179m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;52m",
}

var currentTheme = "everforest"

// SetTheme configures the color scheme for console log output
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" {
		currentTheme = theme
	}
}

func colors() palette {
	if currentTheme == "gruvbox" {
		return gruvbox
	}
	return everforest
}

// idFields are rendered in the ID color so units and files stand out.
var idFields = map[string]bool{
	FieldRunID:   true,
	FieldFeature: true,
	FieldUnit:    true,
	FieldFile:    true,
	FieldDir:     true,
}

// minimalEncoder implements a calm, compact console encoder with theme support
// Format: "13:04:35  c.repair  Compile failed  unit=casting_0 exit_code=1"
type minimalEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		pool:    buffer.NewPool(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		pool:    enc.pool,
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := enc.pool.Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: omitted for INFO
	if ent.Level >= zapcore.WarnLevel || ent.Level == zapcore.DebugLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(c, ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(componentColor(c, ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(c.fg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if len(fields) > 0 {
		final.AppendString("  ")
		final.AppendString(formatFields(c, fields))
	}

	final.AppendString("\n")
	return final, nil
}

func levelColorString(c palette, level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + c.errBg + c.err + "ERROR" + colorReset
	default:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	}
}

func componentColor(c palette, name string) string {
	hash := 0
	for _, r := range name {
		hash += int(r)
	}
	return c.component[hash%len(c.component)]
}

// abbreviateName shortens component names: compile.repair -> c.repair
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// formatFields renders every field as key=value, sorted by key.
// No field is ever dropped.
func formatFields(c palette, fields []zapcore.Field) string {
	m := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(m)
	}

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val := fmt.Sprintf("%v", m.Fields[k])
		switch {
		case idFields[k]:
			val = c.id + val + colorReset
		case isNumber(m.Fields[k]):
			val = c.number + val + colorReset
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, " ")
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
