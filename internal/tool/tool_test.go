package tool_test

import (
	"testing"

	"github.com/mediafetch/fetchd/internal/tool"

	"github.com/stretchr/testify/require"
)

func TestInvocationArgs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    tool.Invocation
		then     []string
	}{
		{
			scenario: "url only",
			given:    tool.Invocation{URL: "https://example.com/g"},
			then:     []string{"--verbose", "https://example.com/g"},
		},
		{
			scenario: "flags in deterministic order",
			given: tool.Invocation{
				Options: map[string]map[string]any{
					"extractor": {
						"retries": 4,
						"quiet":   true,
					},
					"downloader": {
						"rate": "1M",
					},
				},
				URL: "https://example.com/g",
			},
			then: []string{
				"--rate", "1M",
				"--quiet",
				"--retries", "4",
				"--verbose",
				"https://example.com/g",
			},
		},
		{
			scenario: "false and nil dropped",
			given: tool.Invocation{
				Options: map[string]map[string]any{
					"extractor": {
						"quiet":    false,
						"metadata": nil,
						"timeout":  30.5,
					},
				},
				URL: "https://example.com/g",
			},
			then: []string{"--timeout", "30.5", "--verbose", "https://example.com/g"},
		},
		{
			scenario: "output dir and cookies",
			given: tool.Invocation{
				OutputDir:   "/downloads/abc",
				CookiesPath: "/creds/abc.plain",
				URL:         "https://example.com/g",
			},
			then: []string{
				"-D", "/downloads/abc",
				"--verbose",
				"--cookies", "/creds/abc.plain",
				"https://example.com/g",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.then, tc.given.Args())
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	resolved, err := tool.Lookup("sh")
	require.NoError(t, err)
	require.NotEmpty(t, resolved)

	_, err = tool.Lookup("no-such-extraction-tool")
	require.Error(t, err)
}
