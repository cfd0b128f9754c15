package storage

import (
	"fmt"
	"strconv"
)

// ClampPageSize returns requested bounded to (0, limit]. Non-positive
// requests get def.
func ClampPageSize(requested, def, limit int) int {
	if requested <= 0 {
		requested = def
	}

	return min(requested, limit)
}

// DecodeOffsetToken parses an offset-style page token. An empty token is
// offset zero.
func DecodeOffsetToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, InvalidArgumentf("malformed page token %q", token)
	}

	return offset, nil
}

// NextOffsetToken returns the token for the page after offset, or "" when
// offset+limit reaches total.
func NextOffsetToken(offset, limit int, total int64) string {
	next := offset + limit
	if int64(next) >= total {
		return ""
	}

	return strconv.Itoa(next)
}

// String implements fmt.Stringer for log output.
func (o ListFilesOptions) String() string {
	return fmt.Sprintf("page_size=%d token_set=%t order_by=%q trashed=%t",
		o.PageSize, o.PageToken != "", o.OrderBy, o.IncludeTrashed)
}
