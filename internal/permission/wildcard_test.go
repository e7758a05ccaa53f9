package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		matches bool
	}{
		{"exact match", "src/main.go", "src/main.go", true},
		{"exact mismatch", "src/main.go", "src/other.go", false},
		{"global star", "*", "anything at all", true},
		{"global double star", "**", "deep/nested/path", true},
		{"double star crosses separators", "src/**/file.ts", "src/deep/nested/file.ts", true},
		{"double star matches zero segments", "src/**/file.ts", "src/file.ts", true},
		{"single star stays in segment", "/home/*/file.ts", "/home/user/file.ts", true},
		{"single star does not cross separator", "/home/*/file.ts", "/home/user/nested/file.ts", false},
		{"trailing star", "src/*", "src/main.go", true},
		{"trailing star no subdirs", "src/*", "src/sub/main.go", false},
		{"trailing double star", "src/**", "src/sub/main.go", true},
		{"question mark", "file?.go", "file1.go", true},
		{"question mark not separator", "dir?sub", "dir/sub", false},
		{"character class", "file[0-9].go", "file7.go", true},
		{"character class mismatch", "file[0-9].go", "filex.go", false},
		{"leading bracket is class member", "file[]a].go", "file].go", true},
		{"leading bracket class alternative", "file[]a].go", "filea.go", true},
		{"leading bracket class mismatch", "file[]a].go", "fileb.go", false},
		{"negated class", "file[!0-9].go", "filex.go", true},
		{"negated class mismatch", "file[!0-9].go", "file5.go", false},
		{"unterminated bracket is literal", "file[.go", "file[.go", true},
		{"unterminated bracket no glob", "file[.go", "fileX.go", false},
		{"regex metachars are literal", "a.b+c", "a.b+c", true},
		{"dot is not a wildcard", "a.b", "axb", false},
		{"anchored fully", "main.go", "src/main.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, MatchPattern(tt.pattern, tt.value),
				"pattern=%q value=%q", tt.pattern, tt.value)
		})
	}
}

func TestMatchPatternIsPure(t *testing.T) {
	// Same inputs, same answer, any number of times.
	for i := 0; i < 3; i++ {
		assert.True(t, MatchPattern("src/**/*.go", "src/a/b/c.go"))
		assert.False(t, MatchPattern("src/**/*.go", "lib/a.go"))
	}
}
