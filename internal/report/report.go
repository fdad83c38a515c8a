// Package report renders replay results for operators.
package report

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/beyawnko/Majestik-World/internal/replay"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer returns a printer for a BCP 47 tag, falling back to English when
// the tag does not parse.
func Printer(tag string) *message.Printer {
	t, err := language.Parse(tag)
	if err != nil {
		t = language.English
	}
	return message.NewPrinter(t)
}

// Write renders rep. Numbers are grouped the way p's language does it.
func Write(w io.Writer, p *message.Printer, rep *replay.Report) error {
	ticks := len(rep.Ticks) - 1
	if ticks < 0 {
		ticks = 0
	}
	lines := []string{
		p.Sprintf("Script %q", rep.Script),
		stat(p, "ticks", ticks),
		stat(p, "records", rep.Records),
		stat(p, "bytes published", rep.Bytes),
		stat(p, "peak live blocks", rep.PeakLive),
		stat(p, "reclaimed at shutdown", rep.Reclaimed),
		p.Sprintf("  %-24s %.3f s", "simulated time", rep.TimeSeconds),
		p.Sprintf("  %-24s %.3f s", "time of day", rep.TimeOfDaySeconds),
	}
	if n := len(rep.Ticks); n > 0 {
		last := rep.Ticks[n-1]
		lines = append(lines, p.Sprintf("  %-24s %s", "last block digest", hex.EncodeToString(last.Digest[:8])))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func stat(p *message.Printer, label string, n int) string {
	return p.Sprintf("  %-24s %d", label, n)
}
