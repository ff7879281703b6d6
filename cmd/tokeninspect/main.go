package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/tracker"
	"github.com/dgnsrekt/authtap/internal/types"
	"github.com/spf13/pflag"
)

type report struct {
	Status      tracker.Countdown    `json:"status"`
	Claims      []tracker.Claim      `json:"claims"`
	Permissions []tracker.Permission `json:"permissions,omitempty"`
}

func main() {
	asJSON := pflag.Bool("json", false, "print the report as JSON")
	scan := pflag.Bool("scan", false, "treat input as free text and inspect every token-shaped string in it")
	minLength := pflag.Int("min-length", scanner.DefaultMinLength, "minimum token length when scanning")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tokeninspect [flags] [token]\n\nReads the token from stdin when no argument is given.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	input, err := readInput(pflag.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	raws := []string{strings.TrimSpace(input)}
	if *scan {
		raws = raws[:0]
		for _, c := range (scanner.Scanner{MinLength: *minLength}).Scan(input, types.ProvenanceRespBody) {
			raws = append(raws, c.Token)
		}
	} else if tok, ok := scanner.ParseBearer(raws[0]); ok {
		raws[0] = tok
	}
	if len(raws) == 0 || raws[0] == "" {
		fmt.Fprintln(os.Stderr, "error: no token found")
		os.Exit(1)
	}

	exit := 0
	for i, raw := range raws {
		r, ok := inspect(raw, time.Now())
		if !ok {
			fmt.Fprintf(os.Stderr, "error: %s... is not a decodable token\n", prefix(raw))
			exit = 1
			continue
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(r)
			continue
		}
		if i > 0 {
			fmt.Println()
		}
		printReport(os.Stdout, raw, r)
	}
	os.Exit(exit)
}

func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var b strings.Builder
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	return b.String(), sc.Err()
}

func inspect(raw string, now time.Time) (report, bool) {
	t := tracker.New(tracker.WithClock(func() time.Time { return now }))
	t.Observe(types.TokenCandidate{Token: raw})
	tok, _ := t.Current()
	if !tok.Valid {
		return report{}, false
	}
	return report{
		Status:      t.Status(now),
		Claims:      tok.Decoded.Flat(),
		Permissions: tok.Decoded.Permissions(),
	}, true
}

func printReport(w io.Writer, raw string, r report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "token\t%s...\n", prefix(raw))
	fmt.Fprintf(tw, "state\t%s\n", r.Status.State)
	if r.Status.ExpiresAt != nil {
		fmt.Fprintf(tw, "expires\t%s\n", r.Status.ExpiresAt.Local().Format(time.RFC1123))
		fmt.Fprintf(tw, "remaining\t%s (%.0f%%)\n", time.Duration(r.Status.RemainingSeconds)*time.Second, r.Status.Progress*100)
	}
	fmt.Fprintln(tw, "\t")
	for _, c := range r.Claims {
		fmt.Fprintf(tw, "%s\t%s\n", c.Key, c.Value)
	}
	_ = tw.Flush()

	if len(r.Permissions) == 0 {
		return
	}
	fmt.Fprintln(w, "\npermissions:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tSCOPES")
	for _, p := range r.Permissions {
		fmt.Fprintf(tw, "%s\t%s\n", p.RSName, strings.Join(p.Scopes, ", "))
	}
	_ = tw.Flush()
}

func prefix(raw string) string {
	if len(raw) > 16 {
		return raw[:16]
	}
	return raw
}
