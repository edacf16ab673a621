package exitcode_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uniplat/mpresolve/internal/exitcode"
)

func TestGet(t *testing.T) {
	wrapped := fmt.Errorf("load config: %w", exitcode.Set(errors.New("bad key"), exitcode.Usage))

	tests := map[string]struct {
		err      error
		expected int
	}{
		"nil":     {nil, exitcode.OK},
		"default": {errors.New("could not resolve"), exitcode.Failure},
		"set":     {exitcode.Set(errors.New(""), 3), 3},
		"usage":   {exitcode.Usagef("invalid value for --format: %q", "umd"), exitcode.Usage},
		"wrapped": {wrapped, exitcode.Usage},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitcode.Get(tt.err))
		})
	}
}

func TestSet(t *testing.T) {
	err := errors.New("hello")
	coded := exitcode.Set(err, exitcode.Usage)

	assert.Equal(t, err.Error(), coded.Error())
	assert.ErrorIs(t, coded, err)
	assert.NoError(t, exitcode.Set(nil, exitcode.Usage))
}

func TestUsagef(t *testing.T) {
	err := exitcode.Usagef("invalid value for --log-level: %q", "loud")
	assert.EqualError(t, err, `invalid value for --log-level: "loud"`)
}
