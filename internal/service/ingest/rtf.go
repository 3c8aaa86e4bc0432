package ingest

import (
	"errors"
	"strconv"
	"strings"
)

// Destination groups whose content is formatting metadata, not body text.
var rtfSkipGroups = map[string]bool{
	"fonttbl":    true,
	"colortbl":   true,
	"stylesheet": true,
	"info":       true,
	"pict":       true,
	"header":     true,
	"footer":     true,
}

// extractRTF strips RTF control words and groups down to the plain text.
// Good enough for the uploaded rulebooks and notes this app sees; anything
// the small parser cannot make sense of fails the document, and the batch
// treats it as empty content.
func extractRTF(data []byte) (string, error) {
	if !strings.HasPrefix(string(data), `{\rtf`) {
		return "", errors.New("rtf: missing {\\rtf header")
	}

	var sb strings.Builder
	skipDepth := 0 // depth at which a skipped destination group started
	depth := 0

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch c {
		case '{':
			depth++
		case '}':
			if skipDepth > 0 && depth == skipDepth {
				skipDepth = 0
			}
			depth--
		case '\\':
			if i+1 >= len(data) {
				break
			}
			next := data[i+1]
			// Escaped delimiters and the hex escape \'hh
			switch next {
			case '\\', '{', '}':
				if skipDepth == 0 {
					sb.WriteByte(next)
				}
				i++
				continue
			case '\'':
				if i+3 < len(data) {
					if v, err := strconv.ParseUint(string(data[i+2:i+4]), 16, 8); err == nil {
						if skipDepth == 0 {
							sb.WriteRune(rune(v)) // treat as latin-1
						}
						i += 3
						continue
					}
				}
				i++
				continue
			case '*':
				// \* marks an ignorable destination
				if skipDepth == 0 {
					skipDepth = depth
				}
				i++
				continue
			}
			// Control word: letters plus an optional numeric parameter
			j := i + 1
			for j < len(data) && isRTFLetter(data[j]) {
				j++
			}
			word := string(data[i+1 : j])
			k := j
			if k < len(data) && (data[k] == '-' || isDigit(data[k])) {
				k++
				for k < len(data) && isDigit(data[k]) {
					k++
				}
			}
			// A single space after a control word is part of the word
			if k < len(data) && data[k] == ' ' {
				k++
			}
			if skipDepth == 0 {
				if rtfSkipGroups[word] {
					skipDepth = depth
				} else {
					switch word {
					case "par", "line":
						sb.WriteByte('\n')
					case "tab":
						sb.WriteByte('\t')
					}
				}
			}
			i = k - 1
		case '\r', '\n':
			// raw newlines in the file are not document text
		default:
			if skipDepth == 0 {
				sb.WriteByte(c)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func isRTFLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
