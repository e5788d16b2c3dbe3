package tuple

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		tuple    TupleKey
		expected string
	}{
		{
			name:     "user_id",
			tuple:    NewTupleKey("anne", "viewer", "document:roadmap"),
			expected: "document:roadmap#viewer@anne",
		},
		{
			name:     "object_user",
			tuple:    NewTupleKey("user:anne", "editor", "document:roadmap"),
			expected: "document:roadmap#editor@user:anne",
		},
		{
			name:     "userset_user",
			tuple:    NewTupleKey("group:eng#member", "viewer", "document:roadmap"),
			expected: "document:roadmap#viewer@group:eng#member",
		},
		{
			name:     "wildcard_user",
			tuple:    NewTupleKey("user:*", "viewer", "document:public"),
			expected: "document:public#viewer@user:*",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.tuple.String())

			parsed, err := Parse(test.expected)
			require.NoError(t, err)
			require.Equal(t, test.tuple, parsed)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing_user", input: "document:roadmap#viewer"},
		{name: "missing_relation", input: "document:roadmap@anne"},
		{name: "missing_object_type", input: "roadmap#viewer@anne"},
		{name: "whitespace_in_object", input: "document:road map#viewer@anne"},
		{name: "whitespace_in_relation", input: "document:roadmap#can view@anne"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.input)
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		tuple     TupleKey
		expectErr bool
	}{
		{
			name:  "valid",
			tuple: NewTupleKey("user:anne", "viewer", "document:roadmap"),
		},
		{
			name:      "object_without_id",
			tuple:     NewTupleKey("user:anne", "viewer", "document"),
			expectErr: true,
		},
		{
			name:      "relation_with_colon",
			tuple:     NewTupleKey("user:anne", "view:er", "document:roadmap"),
			expectErr: true,
		},
		{
			name:      "user_with_two_colons",
			tuple:     NewTupleKey("user:anne:smith", "viewer", "document:roadmap"),
			expectErr: true,
		},
		{
			name:      "empty_user",
			tuple:     NewTupleKey("", "viewer", "document:roadmap"),
			expectErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.tuple.Validate()
			if test.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitObject(t *testing.T) {
	tests := []struct {
		name         string
		object       string
		expectedType string
		expectedID   string
	}{
		{name: "type_and_id", object: "document:roadmap", expectedType: "document", expectedID: "roadmap"},
		{name: "no_type", object: "roadmap", expectedType: "", expectedID: "roadmap"},
		{name: "trailing_colon", object: "document:", expectedType: "document", expectedID: ""},
		{name: "empty", object: "", expectedType: "", expectedID: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			objectType, objectID := SplitObject(test.object)
			require.Equal(t, test.expectedType, objectType)
			require.Equal(t, test.expectedID, objectID)
		})
	}
}

func TestBuildObject(t *testing.T) {
	require.Equal(t, "document:roadmap", BuildObject("document", "roadmap"))
}

func TestIsValidUser(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		expected bool
	}{
		{name: "wildcard", user: "*", expected: true},
		{name: "user_id", user: "anne", expected: true},
		{name: "object", user: "user:anne", expected: true},
		{name: "typed_wildcard", user: "user:*", expected: true},
		{name: "userset", user: "group:eng#member", expected: true},
		{name: "two_hashes", user: "group:eng#member#admin", expected: false},
		{name: "whitespace", user: "user:an ne", expected: false},
		{name: "empty", user: "", expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, IsValidUser(test.user))
		})
	}
}
