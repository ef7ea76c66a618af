package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("hidden")
	Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("DEBUG message logged at INFO level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("INFO message missing: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("DEBUG")
	Debug("now visible")

	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("DEBUG message missing after SetLevel: %s", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("structured", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"structured"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}

func TestWithAttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	With("component", "test").Info("tagged")

	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Errorf("attribute missing: %s", buf.String())
	}
}
