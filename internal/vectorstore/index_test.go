package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		ns      string
		wantErr bool
	}{
		{"default", DefaultNamespace, false},
		{"course", "course_101", false},
		{"max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Japanese", true},
		{"path traversal", "../etc", true},
		{"space", "my ns", true},
		{"too long", strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.ns)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNamespace)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCourseNamespace(t *testing.T) {
	assert.Equal(t, "course_101", CourseNamespace("101"))
	assert.Equal(t, "course_jp_n5", CourseNamespace(" JP-N5 "))
	long := CourseNamespace(strings.Repeat("x", 100))
	assert.Len(t, long, 64)
	assert.NoError(t, ValidateNamespace(long))
}

func TestVectorDimension(t *testing.T) {
	dim, err := vectorDimension([]Entry{{ID: "a", Vector: []float32{1, 2}}, {ID: "b", Vector: []float32{3, 4}}})
	assert.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = vectorDimension([]Entry{{ID: "a", Vector: []float32{1, 2}}, {ID: "b", Vector: []float32{3}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = vectorDimension([]Entry{{ID: "a"}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
