// Package cursor encodes and decodes opaque keyset pagination tokens.
//
// Wire format (bit-exact, clients persist and replay these): the base64
// encoding of a JSON-encoded string. For id cursors the inner string is the
// decimal id; for composite cursors it is "<YYYY-MM-DD>|<decimal id>". The
// separator can never appear in the date format, so splitting on its first
// occurrence is unambiguous.
//
// Decoding is deliberately tolerant: any failure at any step means "no
// cursor" (start from the first page), never an error. A malformed token
// therefore restarts pagination instead of failing the request.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"quizdeck/pkg/domain"
)

const separator = "|"

// IDCursor resumes an ascending-by-id scan after the given id.
type IDCursor struct {
	ID domain.QuizID
}

// DateIDCursor resumes a composite (publish date, id) scan. The same token
// format serves ascending and descending orderings; the query decides the
// direction of the continuation predicate.
type DateIDCursor struct {
	Date domain.CalendarDate
	ID   domain.QuizID
}

// EncodeID produces the opaque token for a simple id cursor.
func EncodeID(id domain.QuizID) string {
	return encode(id.String())
}

// DecodeID parses a simple id token. Returns nil (no cursor) for the empty
// string and for any malformed or non-positive input.
func DecodeID(token string) *IDCursor {
	inner, ok := decode(token)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(inner), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &IDCursor{ID: domain.QuizID(n)}
}

// EncodeDateID produces the opaque token for a composite cursor.
func EncodeDateID(date domain.CalendarDate, id domain.QuizID) string {
	return encode(date.String() + separator + id.String())
}

// DecodeDateID parses a composite token, validating the date component with
// the same format check as CalendarDate. Returns nil on any failure.
func DecodeDateID(token string) *DateIDCursor {
	inner, ok := decode(token)
	if !ok {
		return nil
	}
	datePart, idPart, found := strings.Cut(inner, separator)
	if !found {
		return nil
	}
	date, err := domain.ParseCalendarDate(datePart)
	if err != nil {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &DateIDCursor{Date: date, ID: domain.QuizID(n)}
}

func encode(inner string) string {
	payload, _ := json.Marshal(inner)
	return base64.StdEncoding.EncodeToString(payload)
}

func decode(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return "", false
	}
	return inner, true
}
