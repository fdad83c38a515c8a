package report

import (
	"strings"
	"testing"

	"github.com/beyawnko/Majestik-World/internal/replay"
)

func TestWriteGroupsNumbersByLanguage(t *testing.T) {
	rep := &replay.Report{
		Script:      "walk",
		Ticks:       make([]replay.TickResult, 3),
		Records:     12,
		Bytes:       1234567,
		TimeSeconds: 0.048,
	}
	var en strings.Builder
	if err := Write(&en, Printer("en"), rep); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, want := range []string{`Script "walk"`, "1,234,567", "0.048 s"} {
		if !strings.Contains(en.String(), want) {
			t.Fatalf("english report missing %q:\n%s", want, en.String())
		}
	}

	var de strings.Builder
	if err := Write(&de, Printer("de"), rep); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(de.String(), "1.234.567") {
		t.Fatalf("german report not grouped:\n%s", de.String())
	}
}

func TestPrinterFallsBackToEnglish(t *testing.T) {
	if got := Printer("not a tag!").Sprintf("%d", 1000); got != "1,000" {
		t.Fatalf("fallback printer: %q", got)
	}
}
