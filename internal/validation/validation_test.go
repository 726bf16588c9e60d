package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/starledger/internal/dialog"
)

func TestIsValidChargeID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"stxAbc123_-", true},
		{"ch_3PqR", true},

		// Invalid cases
		{"", false},
		{"with space", false},
		{"tab\there", false},
		{strings.Repeat("a", 257), false},
	}

	for _, tc := range tests {
		if got := IsValidChargeID(tc.id); got != tc.valid {
			t.Errorf("IsValidChargeID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("charge_id", "ch_1"),
		ValidChargeID("charge_id", "ch_1"),
		Positive("user_id", 42),
		InRange("limit", 20, 0, MaxPageLimit),
		ValidSender(dialog.Sender{ChatID: 7}),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	errs = Validate(
		Required("charge_id", " "),
		ValidChargeID("charge_id", "bad id"),
		Positive("user_id", 0),
		InRange("limit", -1, 0, MaxPageLimit),
		ValidSender(dialog.Sender{UserID: 1, ChatID: 7}),
	)
	if len(errs) != 5 {
		t.Fatalf("Expected 5 errors, got %d", len(errs))
	}
	if errs.Error() != "charge_id: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}
}

func TestInRange_Message(t *testing.T) {
	err := InRange("limit", 101, 0, 100)()
	if err == nil || err.Message != "must be between 0 and 100" {
		t.Errorf("InRange message = %v", err)
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestSenderFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query   string
		want    dialog.Sender
		wantErr string
	}{
		{"user_id=5", dialog.Sender{UserID: 5}, ""},
		{"chat_id=9", dialog.Sender{ChatID: 9}, ""},
		{"user_id=5&chat_id=9", dialog.Sender{UserID: 5, ChatID: 9}, ""},
		{"chat_id=abc", dialog.Sender{}, "chat_id"},
	}

	for _, tc := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/?"+tc.query, nil)

		got, verr := SenderFromQuery(c)
		if tc.wantErr != "" {
			if verr == nil || verr.Field != tc.wantErr {
				t.Errorf("SenderFromQuery(%q) error = %v, want field %s", tc.query, verr, tc.wantErr)
			}
			continue
		}
		if verr != nil || got != tc.want {
			t.Errorf("SenderFromQuery(%q) = %+v, %v", tc.query, got, verr)
		}
	}
}

func TestIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?limit=25&bad=x", nil)

	if v, err := IntQuery(c, "limit", 10); err != nil || v != 25 {
		t.Errorf("IntQuery(limit) = %d, %v", v, err)
	}
	if v, err := IntQuery(c, "missing", 10); err != nil || v != 10 {
		t.Errorf("IntQuery(missing) = %d, %v", v, err)
	}
	if _, err := IntQuery(c, "bad", 10); err == nil {
		t.Error("Expected error for non-integer")
	}
}
