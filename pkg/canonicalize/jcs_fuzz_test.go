package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"html":"<script>alert('xss')</script> &"}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"arr":[3,1,2],"nested":{"deep":{"key":"val"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty_key","a":""}`))
	f.Add([]byte(`{"unicode":"こんにちは","emoji":"🚀"}`))
	f.Add([]byte(`{"escape":"line1\nline2\ttab"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := JCS(v)
		if err != nil {
			return
		}

		b2, err := JCS(v)
		if err != nil {
			t.Fatal("JCS returned error on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("JCS non-deterministic:\n  first:  %s\n  second: %s", b1, b2)
		}

		var check interface{}
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("JCS output is not valid JSON: %s", string(b1))
		}

		h1, err := Hash(v)
		if err != nil {
			return
		}
		h2, err := Hash(v)
		if err != nil {
			t.Fatal("Hash returned error on second call but not first")
		}
		if h1 != h2 {
			t.Errorf("Hash non-deterministic: %s != %s", h1, h2)
		}
	})
}

func FuzzString(f *testing.F) {
	f.Add([]byte(`{"key":"value"}`))
	f.Add([]byte(`{"a":1,"c":3,"b":2}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON")
			return
		}

		s, err := String(v)
		if err != nil {
			return
		}

		b, err := JCS(v)
		if err != nil {
			t.Fatal("JCS failed but String succeeded")
		}
		if s != string(b) {
			t.Errorf("String != JCS: %q vs %q", s, string(b))
		}
	})
}
