package expansion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaioWing/apkharbor/internal/domain"
)

func TestClassify(t *testing.T) {
	f, err := Classify("main.7.com.example.app.obb")
	require.NoError(t, err)
	assert.Equal(t, domain.ExpansionMain, f.Type)
	assert.Equal(t, int64(7), f.VersionCode)
	assert.Equal(t, "com.example.app", f.ApplicationID)
}

func TestClassify_CaseInsensitiveType(t *testing.T) {
	f, err := Classify("build/obb/PATCH.12.com.example_app.obb")
	require.NoError(t, err)
	assert.Equal(t, domain.ExpansionPatch, f.Type)
	assert.Equal(t, int64(12), f.VersionCode)
	assert.Equal(t, "com.example_app", f.ApplicationID)
	assert.Equal(t, "build/obb/PATCH.12.com.example_app.obb", f.Path)
}

func TestClassify_Invalid(t *testing.T) {
	for _, name := range []string{
		"badname.obb",
		"main.x.com.example.obb",
		"main.7.com.example.zip",
		"extra.7.com.example.obb",
		"main.7.com-example.obb",
		"main.7.com.example.OBB",
	} {
		_, err := Classify(name)
		assert.ErrorIs(t, err, domain.ErrInvalidNaming, name)
	}
}

func TestGroup(t *testing.T) {
	files, err := Group([]string{
		"main.1.com.example.obb",
		"patch.1.com.example.obb",
		"main.3.com.example.obb",
	}, "com.example", []int64{1, 2, 3}, false)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, files.VersionCodes())
	assert.NotNil(t, files[1].Main)
	assert.NotNil(t, files[1].Patch)
	assert.Nil(t, files[3].Patch)
}

func TestGroup_WrongApplication(t *testing.T) {
	_, err := Group([]string{"main.1.com.other.obb"}, "com.example", []int64{1}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidNaming)
}

func TestGroup_VersionNotUploaded(t *testing.T) {
	_, err := Group([]string{"main.9.com.example.obb"}, "com.example", []int64{1}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidNaming)
}

func TestGroup_DuplicateType(t *testing.T) {
	_, err := Group([]string{"a/main.1.com.example.obb", "b/main.1.com.example.obb"}, "com.example", []int64{1}, true)
	assert.ErrorIs(t, err, domain.ErrInvalidNaming)
}

func TestGroup_PatchWithoutMain(t *testing.T) {
	_, err := Group([]string{"patch.1.com.example.obb"}, "com.example", []int64{1}, false)
	assert.ErrorIs(t, err, domain.ErrDiscovery)

	files, err := Group([]string{"patch.1.com.example.obb"}, "com.example", []int64{1}, true)
	require.NoError(t, err)
	assert.NotNil(t, files[1].Patch)
}
