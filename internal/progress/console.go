package progress

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	timeColor  = color.New(color.FgHiBlack)
)

// ConsoleSink prints entries to w, coloured by level.
func ConsoleSink(w io.Writer) func(Entry) {
	return func(e Entry) {
		stamp := timeColor.Sprintf("[%s]", e.Time.Format("15:04:05"))
		switch e.Level {
		case LevelWarn:
			fmt.Fprintf(w, "%s %s\n", stamp, warnColor.Sprint(e.Message))
		case LevelError:
			fmt.Fprintf(w, "%s %s\n", stamp, errorColor.Sprint(e.Message))
		default:
			fmt.Fprintf(w, "%s %s\n", stamp, e.Message)
		}
	}
}
