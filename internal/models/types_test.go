package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_ValueEscapes(t *testing.T) {
	v, err := StringArray{`C:\tmp`, `say "hi"`, `a\"b`}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"C:\\tmp","say \"hi\"","a\\\"b"}`, v)

	v, err = StringArray{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestStringArray_RoundTrip(t *testing.T) {
	cases := map[string]StringArray{
		"plain":            {"09:00", "13:30"},
		"backslash":        {`C:\tmp\`, `\\`},
		"quotes":           {`say "hi"`, `"`},
		"escaped quote":    {`a\"b`},
		"comma and braces": {"a,b", "{x}"},
		"empty element":    {"", "x"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			v, err := in.Value()
			require.NoError(t, err)

			var out StringArray
			require.NoError(t, out.Scan(v))
			assert.Equal(t, in, out)

			out = nil
			require.NoError(t, out.Scan([]byte(v.(string))))
			assert.Equal(t, in, out)
		})
	}
}

func TestStringArray_ScanPostgresForms(t *testing.T) {
	var s StringArray
	require.NoError(t, s.Scan(`{ai, "machine learning" ,go}`))
	assert.Equal(t, StringArray{"ai", "machine learning", "go"}, s)

	require.NoError(t, s.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringArray{"a", "b"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, StringArray{}, s)

	assert.Error(t, s.Scan(42))
}
