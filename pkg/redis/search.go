package redis

import (
	"fmt"
	"strconv"
	"strings"
)

// SearchDoc is one document of an FT.SEARCH reply.
type SearchDoc struct {
	Key    string
	Fields map[string]string
}

// ParseSearchReply decodes a RESP2 FT.SEARCH reply:
// [total, key1, [field, value, ...], key2, [...], ...].
// Replies produced with NOCONTENT carry keys only.
func ParseSearchReply(reply any) (int64, []SearchDoc, error) {
	arr, ok := reply.([]any)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected FT.SEARCH reply type %T", reply)
	}
	if len(arr) == 0 {
		return 0, nil, nil
	}

	total, err := toInt64(arr[0])
	if err != nil {
		return 0, nil, fmt.Errorf("parse FT.SEARCH total: %w", err)
	}

	docs := make([]SearchDoc, 0, (len(arr)-1)/2)
	for i := 1; i < len(arr); i++ {
		key, ok := arr[i].(string)
		if !ok {
			return 0, nil, fmt.Errorf("unexpected document key type %T at %d", arr[i], i)
		}
		doc := SearchDoc{Key: key, Fields: map[string]string{}}

		if i+1 < len(arr) {
			if fields, ok := arr[i+1].([]any); ok {
				for j := 0; j+1 < len(fields); j += 2 {
					name, _ := fields[j].(string)
					doc.Fields[name] = fmt.Sprint(fields[j+1])
				}
				i++
			}
		}
		docs = append(docs, doc)
	}
	return total, docs, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

var tagReplacer = strings.NewReplacer(
	",", `\,`, ".", `\.`, "<", `\<`, ">", `\>`, "{", `\{`, "}", `\}`,
	"[", `\[`, "]", `\]`, `"`, `\"`, "'", `\'`, ":", `\:`, ";", `\;`,
	"!", `\!`, "@", `\@`, "#", `\#`, "$", `\$`, "%", `\%`, "^", `\^`,
	"&", `\&`, "*", `\*`, "(", `\(`, ")", `\)`, "-", `\-`, "+", `\+`,
	"=", `\=`, "~", `\~`, "|", `\|`, "/", `\/`, " ", `\ `,
)

// EscapeTag escapes a value for use inside a TAG filter such as @sessionId:{value}.
func EscapeTag(v string) string {
	return tagReplacer.Replace(v)
}
