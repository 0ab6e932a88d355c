package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

// Context keys rendered by dedicated sections rather than as details.
var reservedKeys = map[string]bool{
	"fields": true,
	"helps":  true,
	"file":   true,
}

// FormatError formats an error in Cargo style:
//
//	error[E2001]: invalid record
//	  --> schema.yaml
//	   |
//	   = age: must be at least 0
//	   | table: Contacts
//	help: ...
//
// Errors that are not *alerr.Error render as a single line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var e *alerr.Error
	if !errors.As(err, &e) {
		return Error("error") + ": " + err.Error() + "\n"
	}

	var b strings.Builder
	ctx := e.GetContext()

	b.WriteString(Error("error"))
	b.WriteString("[")
	b.WriteString(Code(string(e.GetCode())))
	b.WriteString("]: ")
	b.WriteString(e.GetMessage())
	b.WriteString("\n")

	if file, ok := ctx["file"].(string); ok && file != "" {
		b.WriteString("  ")
		b.WriteString(render(stylePipe, "-->"))
		b.WriteString(" ")
		b.WriteString(Header(file))
		b.WriteString("\n")
	}

	fields, _ := ctx["fields"].([]string)
	var details []string
	for k, v := range ctx {
		if reservedKeys[k] || strings.HasPrefix(k, "field ") {
			continue
		}
		details = append(details, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(details)

	if len(fields) > 0 || len(details) > 0 {
		b.WriteString("   ")
		b.WriteString(Pipe())
		b.WriteString("\n")
	}
	for _, f := range fields {
		b.WriteString("   ")
		b.WriteString(render(stylePipe, "="))
		b.WriteString(" ")
		b.WriteString(Accent(f))
		b.WriteString(": ")
		b.WriteString(fmt.Sprint(ctx["field "+f]))
		b.WriteString("\n")
	}
	for _, d := range details {
		b.WriteString("   ")
		b.WriteString(Pipe())
		b.WriteString(" ")
		b.WriteString(d)
		b.WriteString("\n")
	}

	if cause := e.GetCause(); cause != nil {
		b.WriteString(Note("cause"))
		b.WriteString(": ")
		b.WriteString(cause.Error())
		b.WriteString("\n")
	}

	for _, help := range e.Helps() {
		b.WriteString(Help("help"))
		b.WriteString(": ")
		b.WriteString(help)
		b.WriteString("\n")
	}
	return b.String()
}
