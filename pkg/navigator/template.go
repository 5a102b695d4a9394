package navigator

import (
	"net/url"
	"strings"
)

// ExpandTemplate resolves a URI template against vars. Two operators are
// supported: simple substitution ({id}) and form-style query expansion
// ({?q,page}). Unresolved variables are elided rather than left in place,
// so a partial binding still yields a dereferenceable URL.
func ExpandTemplate(template string, vars map[string]string) string {
	var out strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		expr := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		if strings.HasPrefix(expr, "?") {
			out.WriteString(expandQuery(expr[1:], vars))
			continue
		}
		if v, ok := vars[expr]; ok {
			out.WriteString(url.PathEscape(v))
		}
	}
	return out.String()
}

func expandQuery(names string, vars map[string]string) string {
	q := url.Values{}
	ordered := make([]string, 0, 4)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if v, ok := vars[name]; ok {
			q.Set(name, v)
			ordered = append(ordered, name)
		}
	}
	if len(ordered) == 0 {
		return ""
	}
	// Preserve the template's parameter order instead of the map's.
	parts := make([]string, len(ordered))
	for i, name := range ordered {
		parts[i] = url.QueryEscape(name) + "=" + url.QueryEscape(q.Get(name))
	}
	return "?" + strings.Join(parts, "&")
}
