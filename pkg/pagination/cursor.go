package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cursor is the opaque pagination token for category record pages, with short
// field names to minimize payload size. It is serialized to minified JSON and
// encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - p:   canonical workbook path
//   - m:   comparison mode ("columns" or "sheets")
//   - s:   sheet read in columns mode
//   - pv:  previous column or sheet, as resolved
//   - cv:  current column or sheet, as resolved
//   - th:  low-score threshold
//   - c:   category key
//   - off: record offset within the category
//   - ps:  page size
//   - ah:  analysis fingerprint at issue time
//   - iat: issued-at timestamp (unix seconds)
type Cursor struct {
	V    int     `json:"v"`
	Path string  `json:"p"`
	Mode string  `json:"m"`
	S    string  `json:"s,omitempty"`
	Prev string  `json:"pv,omitempty"`
	Curr string  `json:"cv,omitempty"`
	Th   float64 `json:"th"`
	Cat  string  `json:"c"`
	Off  int     `json:"off"`
	Ps   int     `json:"ps"`
	Ah   string  `json:"ah,omitempty"`
	Iat  int64   `json:"iat"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("cursor: p (workbook path) required")
	}
	switch c.Mode {
	case "columns", "sheets":
	default:
		return fmt.Errorf("cursor: invalid mode %q", c.Mode)
	}
	if strings.TrimSpace(c.Cat) == "" {
		return errors.New("cursor: c (category) required")
	}
	if c.Th < 0 || c.Th > 100 {
		return errors.New("cursor: th must be within [0,100]")
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// Fingerprint hashes the parts that identify an analysis result so a cursor
// issued against one classification is rejected after the data changes.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Window clamps a page of size ps starting at off to total items. It returns
// the slice bounds and the offset of the following page, or -1 when the page
// is the last one.
func Window(total, off, ps int) (start, end, next int) {
	if off < 0 {
		off = 0
	}
	if off > total {
		off = total
	}
	end = off + ps
	if ps <= 0 || end > total {
		end = total
	}
	next = -1
	if end < total {
		next = end
	}
	return off, end, next
}
