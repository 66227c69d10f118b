package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := InvalidArgsf("field %q is required", "text")
	assert.Equal(t, KindInvalidArguments, err.Kind)
	assert.Equal(t, `InvalidArguments: field "text" is required`, err.Error())
}

func TestWithDetail(t *testing.T) {
	err := InvalidArgsf("bad field").WithDetail(map[string]string{"field": "text"})
	assert.Equal(t, map[string]string{"field": "text"}, err.Detail)
}

func TestTranslatePassthrough(t *testing.T) {
	original := Internalf("backend down")
	translated := Translate(original)
	assert.Same(t, original, translated)
}

func TestTranslateWrapped(t *testing.T) {
	original := Errorf(KindTimeout, "too slow")
	wrapped := fmt.Errorf("invoke: %w", original)
	translated := Translate(wrapped)
	assert.Same(t, original, translated)
}

func TestTranslateContextErrors(t *testing.T) {
	translated := Translate(context.DeadlineExceeded)
	require.NotNil(t, translated)
	assert.Equal(t, KindTimeout, translated.Kind)

	translated = Translate(context.Canceled)
	require.NotNil(t, translated)
	assert.Equal(t, KindTimeout, translated.Kind)
}

func TestTranslateRawError(t *testing.T) {
	translated := Translate(fmt.Errorf("ECONNREFUSED"))
	require.NotNil(t, translated)
	assert.Equal(t, KindRouterInternal, translated.Kind)
	assert.Contains(t, translated.Message, "ECONNREFUSED")
}

func TestTranslateNil(t *testing.T) {
	assert.Nil(t, Translate(nil))
}

func TestNotOwned(t *testing.T) {
	err := NotOwned("developer", "upload_file")
	assert.Equal(t, KindRouterInternal, err.Kind)
	assert.Contains(t, err.Message, "developer")
	assert.Contains(t, err.Message, "upload_file")
}
