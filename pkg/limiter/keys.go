package limiter

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// resolveKey derives the store key for one call. An explicit name wins, then
// a format rendered against args, then the protected function's identity.
// The derivation is pure: the same inputs produce the same key in every
// process, which is what makes separately constructed limiters converge on
// one shared budget.
func resolveKey(prefix, name, format string, fn any, args Args) (string, error) {
	switch {
	case name != "":
		return prefix + name, nil
	case format != "":
		rendered, err := renderFormat(format, args)
		if err != nil {
			return "", err
		}
		return prefix + rendered, nil
	default:
		ident, err := funcIdentity(fn)
		if err != nil {
			return "", err
		}
		return prefix + ident, nil
	}
}

// renderFormat substitutes {field} placeholders with values from args.
// "{{" and "}}" escape literal braces.
func renderFormat(format string, args Args) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder in %q", ErrKeyFormat, format)
			}
			field := format[i+1 : i+1+end]
			val, ok := args[field]
			if !ok {
				return "", fmt.Errorf("%w: no argument %q for format %q", ErrKeyFormat, field, format)
			}
			fmt.Fprintf(&b, "%v", val)
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: unmatched %q in %q", ErrKeyFormat, "}", format)
		default:
			b.WriteByte(format[i])
		}
	}
	return b.String(), nil
}

// funcIdentity returns the fully qualified name of fn, for example
// "github.com/acme/app/worker.SyncOrders". Repeated wrapping of the same
// function therefore lands on the same default key without any
// configuration, in every process running the same binary.
func funcIdentity(fn any) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("%w: no name, format, or function to derive a key from", ErrInvalidConfig)
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return "", fmt.Errorf("%w: cannot derive a key from %T", ErrInvalidConfig, fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "", fmt.Errorf("%w: cannot resolve function identity", ErrInvalidConfig)
	}
	// Method values carry a "-fm" suffix that is not part of the identity.
	return strings.TrimSuffix(f.Name(), "-fm"), nil
}
