package warehouse

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRunErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		wantLen int
	}{
		{"short", "connection refused", 18},
		{"exact", strings.Repeat("x", MaxRunErrorMessage), MaxRunErrorMessage},
		{"ascii overflow", strings.Repeat("x", 3000), MaxRunErrorMessage},
		// "ж" is two bytes; the 1000th one starts at byte 1999.
		{"cyrillic straddling the bound", strings.Repeat("a", 1999) + strings.Repeat("ж", 10), 1999},
		{"all cyrillic", strings.Repeat("ошибка ", 400), MaxRunErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunErrorMessage(tt.msg)
			assert.Len(t, got, tt.wantLen)
			assert.True(t, utf8.ValidString(got))
			assert.True(t, strings.HasPrefix(tt.msg, got))
		})
	}
}
