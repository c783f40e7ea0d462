package redis

import "strings"

const defaultNamespace = "cc"

// keyspace joins key parts under a namespace, dropping blank parts.
type keyspace string

func (k keyspace) join(parts ...string) string {
	var b strings.Builder
	if k == "" {
		b.WriteString(defaultNamespace)
	} else {
		b.WriteString(string(k))
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
