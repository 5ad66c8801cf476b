package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"list generated_text", `[{"generated_text": "X"}]`, "X"},
		{"object summary_text", `{"summary_text": "Y"}`, "Y"},
		{"object answer", `{"answer": "Z", "score": 0.9}`, "Z"},
		{"priority order", `{"answer": "a", "generated_text": "g"}`, "g"},
		{"list uses element zero", `[{"answer": "first"}, {"generated_text": "second"}]`, "first"},
		{"empty object", `{}`, UnrecognizedFormat},
		{"empty list", `[]`, UnrecognizedFormat},
		{"list of strings", `["X"]`, UnrecognizedFormat},
		{"bare string", `"X"`, UnrecognizedFormat},
		{"null", `null`, UnrecognizedFormat},
		{"non-string field skipped", `{"generated_text": 3, "answer": "ok"}`, "ok"},
		{"error object", `{"error": "Model is loading"}`, UnrecognizedFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Body([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBodyRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := Body([]byte(`<html>502 Bad Gateway</html>`))
	require.Error(t, err)
}

func TestTextIsTotal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, UnrecognizedFormat, Text(nil))
	assert.Equal(t, UnrecognizedFormat, Text(&structpb.Value{}))
	assert.Equal(t, UnrecognizedFormat, Text(structpb.NewNumberValue(4)))
	assert.Equal(t, UnrecognizedFormat, Text(structpb.NewListValue(&structpb.ListValue{
		Values: []*structpb.Value{structpb.NewNullValue()},
	})))
}
