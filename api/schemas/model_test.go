package schemas_test

import (
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// TestMessageConstructors verifies the role assigned by each constructor and
// that only user turns carry images.
func TestMessageConstructors(t *testing.T) {
	t.Parallel()
	img := schemas.ImagePart{Data: []byte{0x89, 0x50}, MIMEType: "image/png"}

	sys := schemas.SystemMessage("rules")
	assert.Equal(t, schemas.RoleSystem, sys.Role)
	assert.Empty(t, sys.Images)

	user := schemas.UserMessage("screen", img)
	assert.Equal(t, schemas.RoleUser, user.Role)
	require.Len(t, user.Images, 1)
	assert.Equal(t, "image/png", user.Images[0].MIMEType)

	bare := schemas.UserMessage("no image")
	assert.Empty(t, bare.Images)

	asst := schemas.AssistantMessage("do(action=\"Back\")")
	assert.Equal(t, schemas.RoleAssistant, asst.Role)
}

func TestImagePart_DataURL(t *testing.T) {
	t.Parallel()
	data := []byte("not-really-a-png")
	url := schemas.ImagePart{Data: data, MIMEType: "image/png"}.DataURL()

	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

// TestStructJSONTags pins the wire names used when requests are archived.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Message",
			structRef: schemas.Message{},
			expectedTags: map[string]string{
				"Role":   "role",
				"Text":   "text",
				"Images": "images,omitempty",
			},
		},
		{
			name:      "GenerationRequest",
			structRef: schemas.GenerationRequest{},
			expectedTags: map[string]string{
				"Messages": "messages",
				"Tier":     "tier",
				"Options":  "options",
			},
		},
		{
			name:      "Usage",
			structRef: schemas.Usage{},
			expectedTags: map[string]string{
				"PromptTokens":     "prompt_tokens",
				"CompletionTokens": "completion_tokens",
				"TotalTokens":      "total_tokens",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tt.structRef)
			for field, want := range tt.expectedTags {
				f, ok := typ.FieldByName(field)
				require.True(t, ok, "field %s missing", field)
				assert.Equal(t, want, f.Tag.Get("json"), "json tag for %s", field)
			}
		})
	}
}
