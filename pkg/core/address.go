package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Spreadsheet grid limits.
const (
	MaxColumns = 16384   // XFD
	MaxRows    = 1048576 // 2^20
)

// Address identifies one cell: sheet name plus 1-based column and row.
// Addresses are comparable and can be used as map keys.
type Address struct {
	Sheet string
	Col   int
	Row   int
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Compare orders addresses by sheet, then row, then column.
func (a Address) Compare(b Address) int {
	if a.Sheet != b.Sheet {
		if a.Sheet < b.Sheet {
			return -1
		}
		return 1
	}
	if a.Row != b.Row {
		if a.Row < b.Row {
			return -1
		}
		return 1
	}
	switch {
	case a.Col < b.Col:
		return -1
	case a.Col > b.Col:
		return 1
	}
	return 0
}

// Less reports whether a sorts before b.
func (a Address) Less(b Address) bool {
	return a.Compare(b) < 0
}

// Local returns the sheet-less A1 form, e.g. "B2".
func (a Address) Local() string {
	return ColumnName(a.Col) + strconv.Itoa(a.Row)
}

// String returns the sheet-qualified form, e.g. "Sheet1!B2" or "'My Sheet'!B2".
func (a Address) String() string {
	if a.Sheet == "" {
		return a.Local()
	}
	return QuoteSheet(a.Sheet) + "!" + a.Local()
}

// SortAddresses sorts addrs in place by Address order.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Less(addrs[j])
	})
}

// ColumnName converts a 1-based column index to letters (1 -> A, 28 -> AB).
func ColumnName(col int) string {
	if col <= 0 {
		return "?"
	}
	var buf [4]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// ColumnIndex converts column letters to a 1-based index. Case-insensitive.
func ColumnIndex(letters string) (int, error) {
	if letters == "" || len(letters) > 3 {
		return 0, fmt.Errorf("invalid column %q", letters)
	}
	col := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		col = col*26 + int(c-'A'+1)
	}
	if col > MaxColumns {
		return 0, fmt.Errorf("column %q out of range", letters)
	}
	return col, nil
}

// ParseLocal parses an unqualified A1-style reference ("B2", "$B$2") on sheet.
func ParseLocal(sheet, ref string) (Address, error) {
	s := strings.TrimPrefix(ref, "$")
	i := 0
	for i < len(s) && isASCIILetter(s[i]) {
		i++
	}
	letters := s[:i]
	rest := strings.TrimPrefix(s[i:], "$")
	if letters == "" || rest == "" {
		return Address{}, fmt.Errorf("invalid cell reference %q", ref)
	}
	for j := 0; j < len(rest); j++ {
		if rest[j] < '0' || rest[j] > '9' {
			return Address{}, fmt.Errorf("invalid cell reference %q", ref)
		}
	}
	col, err := ColumnIndex(letters)
	if err != nil {
		return Address{}, fmt.Errorf("invalid cell reference %q: %w", ref, err)
	}
	row, err := strconv.Atoi(rest)
	if err != nil || row < 1 || row > MaxRows {
		return Address{}, fmt.Errorf("invalid cell reference %q: row out of range", ref)
	}
	return Address{Sheet: sheet, Col: col, Row: row}, nil
}

// ParseCellRef parses a cell reference that may carry its own sheet prefix
// ("Sheet2!A1", "'My Sheet'!$A$1"). Unqualified references resolve to sheet.
func ParseCellRef(sheet, ref string) (Address, error) {
	ref = strings.TrimSpace(ref)
	if name, local, ok := SplitSheet(ref); ok {
		return ParseLocal(name, local)
	}
	return ParseLocal(sheet, ref)
}

// ParseAddress parses a fully qualified reference such as "Sheet1!B2".
func ParseAddress(ref string) (Address, error) {
	name, local, ok := SplitSheet(strings.TrimSpace(ref))
	if !ok {
		return Address{}, fmt.Errorf("reference %q has no sheet", ref)
	}
	return ParseLocal(name, local)
}

// SplitSheet splits "Sheet!A1" or "'My Sheet'!A1" into its sheet and local parts.
func SplitSheet(ref string) (sheet, local string, ok bool) {
	if strings.HasPrefix(ref, "'") {
		var b strings.Builder
		for i := 1; i < len(ref); i++ {
			if ref[i] != '\'' {
				b.WriteByte(ref[i])
				continue
			}
			if i+1 < len(ref) && ref[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			if i+1 < len(ref) && ref[i+1] == '!' {
				return b.String(), ref[i+2:], true
			}
			return "", ref, false
		}
		return "", ref, false
	}
	idx := strings.LastIndexByte(ref, '!')
	if idx <= 0 {
		return "", ref, false
	}
	return ref[:idx], ref[idx+1:], true
}

// QuoteSheet returns the sheet name as it must appear in a reference.
func QuoteSheet(name string) string {
	if isPlainSheetName(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func isPlainSheetName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isASCIILetter(c), c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
