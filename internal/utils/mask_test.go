package utils

import "testing"

func TestMaskKey(t *testing.T) {
	cases := []struct {
		name string
		key  string
		want string
	}{
		{"empty key is called out", "", "(empty)"},
		{"short key fully blanked", "sk-local", "****"},
		{"fifteen chars still blanked", "123456789012345", "****"},
		{"standard key keeps ends", "sk-ant-REDACTED", "sk-ant-a...6789"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskKey(tc.key); got != tc.want {
				t.Errorf("MaskKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestMaskKeyShort(t *testing.T) {
	cases := []struct {
		name string
		key  string
		want string
	}{
		{"empty key blanked", "", "****"},
		{"eight chars blanked", "12345678", "****"},
		{"eleven chars would leak, blanked", "12345678901", "****"},
		{"standard key keeps ends", "sk-or-v1-abcd1234", "sk-o...1234"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskKeyShort(tc.key); got != tc.want {
				t.Errorf("MaskKeyShort(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}
