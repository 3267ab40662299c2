package rules_test

import (
	"testing"

	"github.com/abrw/reqfilter/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRule(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		wantErr  error
		wantType any
		name     string
		line     string
	}{{
		wantErr:  nil,
		wantType: nil,
		name:     "empty",
		line:     "   ",
	}, {
		wantErr:  nil,
		wantType: nil,
		name:     "comment",
		line:     "! Title: EasyList",
	}, {
		wantErr:  nil,
		wantType: nil,
		name:     "garbage_comment",
		line:     "!!!not-a-rule###",
	}, {
		wantErr:  nil,
		wantType: nil,
		name:     "header",
		line:     "[Adblock Plus 2.0]",
	}, {
		wantErr:  nil,
		wantType: nil,
		name:     "hosts_comment",
		line:     "# hosts file",
	}, {
		wantErr:  rules.ErrUnsupportedRule,
		wantType: nil,
		name:     "element_hiding",
		line:     "example.org##.banner",
	}, {
		wantErr:  rules.ErrUnsupportedRule,
		wantType: nil,
		name:     "element_hiding_exception",
		line:     "#@#.ad-slot",
	}, {
		wantErr:  rules.ErrUnsupportedRule,
		wantType: nil,
		name:     "html_filtering",
		line:     "example.org$$script[data-ad]",
	}, {
		wantErr:  nil,
		wantType: &rules.HostRule{},
		name:     "hosts",
		line:     "0.0.0.0 ads.example.org",
	}, {
		wantErr:  nil,
		wantType: &rules.NetworkRule{},
		name:     "network",
		line:     "||ads.example.org^",
	}, {
		wantErr:  nil,
		wantType: &rules.NetworkRule{},
		name:     "network_trimmed",
		line:     "  @@||example.org^$document  ",
	}, {
		wantErr:  nil,
		wantType: &rules.NetworkRule{},
		name:     "bare_domain",
		line:     "ads.example.org",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := rules.NewRule(tc.line, 1)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, r)

				return
			}

			require.NoError(t, err)
			if tc.wantType == nil {
				assert.Nil(t, r)

				return
			}

			require.NotNil(t, r)
			assert.IsType(t, tc.wantType, r)
			assert.Equal(t, 1, r.GetFilterListID())
		})
	}
}

func TestNewRule_syntaxError(t *testing.T) {
	t.Parallel()

	_, err := rules.NewRule("||example.org^$unknown-modifier", 1)
	require.Error(t, err)

	var synErr *rules.RuleSyntaxError
	assert.ErrorAs(t, err, &synErr)
	assert.Contains(t, err.Error(), "||example.org^$unknown-modifier")
}
