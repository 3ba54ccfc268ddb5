// Package helpers holds small text utilities shared by the generator,
// independent of the AST.
package helpers

import (
	"errors"
	"strings"
)

// RemoveComments strips both block (/* ... */) and line (// ...) comments
// from a raw JS/CSS source string. Used when a script{} or [Origin] body
// needs a comment-free form, e.g. for HasExports-style scanning or a
// minified debug dump.
func RemoveComments(input string) (string, error) {
	var (
		sb        = strings.Builder{}
		inComment = false
	)
	for cur := 0; cur < len(input); cur++ {
		peekIs := func(assert byte) bool { return cur+1 < len(input) && input[cur+1] == assert }

		if input[cur] == '/' && !inComment {
			if peekIs('*') {
				inComment = true
				cur++
			} else if peekIs('/') {
				for cur < len(input) && input[cur] != '\n' {
					cur++
				}
				continue
			}
		} else if input[cur] == '*' && inComment && peekIs('/') {
			inComment = false
			cur++
			continue
		}

		if !inComment {
			sb.WriteByte(input[cur])
		}
	}

	if inComment {
		return "", errors.New("unterminated comment")
	}

	return strings.TrimSpace(sb.String()), nil
}
