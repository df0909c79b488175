package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "/neosync:"+Version+"/", UserAgent())
	assert.Contains(t, Version, NeosyncSemVer)
}
