package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	tb := NewTable("ID", "NAME")
	tb.AddRow("pro", "Pro")
	tb.Render(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[1], "--") || !strings.Contains(lines[2], "Pro") {
		t.Errorf("unexpected table %q", buf.String())
	}
}

func TestPrintOutput(t *testing.T) {
	data := map[string]interface{}{"planId": "pro", "amount": "12.5"}

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "json", want: `"planId": "pro"`},
		{format: "yaml", want: "planId: pro"},
		{format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := printOutput(&buf, tt.format, data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
