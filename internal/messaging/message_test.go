package messaging

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
		wire string
	}{
		{name: "detect images", msg: DetectImages{}, wire: `{"action":"detectImages"}`},
		{name: "scan page", msg: ScanPage{}, wire: `{"action":"scanPage"}`},
		{name: "detect image", msg: DetectImage{URL: "https://a.example/x.jpg"}, wire: `{"action":"detectImage","url":"https://a.example/x.jpg"}`},
		{name: "show result", msg: ShowResult{ResultText: "12% AI"}, wire: `{"action":"showResult","resultText":"12% AI"}`},
		{name: "toggle", msg: ToggleDetection{Enabled: true}, wire: `{"action":"toggleDetection","enabled":true}`},
		{name: "check text with selection", msg: CheckText{Text: "hi", PageURL: "https://a.example/", Selector: "#intro"},
			wire: `{"action":"checkText","text":"hi","pageUrl":"https://a.example/","selector":"#intro"}`},
		{name: "counts", msg: DetectionCounts{TotalDetectionCount: 3, TotalFakeImageCount: 1, TotalFakeTextCount: 2},
			wire: `{"action":"detectionCounts","totalDetectionCount":3,"totalFakeImageCount":1,"totalFakeTextCount":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !jsonEqual(t, got, []byte(tt.wire)) {
				t.Errorf("Encode() = %s, want %s", got, tt.wire)
			}

			decoded, err := Decode([]byte(tt.wire))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if decoded != tt.msg {
				t.Errorf("Decode() = %#v, want %#v", decoded, tt.msg)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "unknown action", in: `{"action":"explode"}`, want: ErrUnknownAction},
		{name: "missing action", in: `{"url":"x"}`, want: ErrMissingAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Decode([]byte(tt.in)); !errors.Is(err, tt.want) {
				t.Errorf("Decode(%s) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		_, err := Decode([]byte(`{"action":`))
		var syntax *json.SyntaxError
		if !errors.As(err, &syntax) {
			t.Errorf("expected wrapped syntax error, got %v", err)
		}
	})

	t.Run("wrong field type", func(t *testing.T) {
		t.Parallel()

		if _, err := Decode([]byte(`{"action":"toggleDetection","enabled":"yes"}`)); err == nil {
			t.Error("expected error for non-boolean enabled")
		}
	})
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()

	var x, y any
	if err := json.Unmarshal(a, &x); err != nil {
		t.Fatalf("invalid json %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &y); err != nil {
		t.Fatalf("invalid json %s: %v", b, err)
	}
	xs, _ := json.Marshal(x)
	ys, _ := json.Marshal(y)
	return string(xs) == string(ys)
}
