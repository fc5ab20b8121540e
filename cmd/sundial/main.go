// Package main implements the sundial CLI: offline inspection of
// recurrence expansion and slot search without a running server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sundial-dev/sundial/pkg/icsfeed"
	"github.com/sundial-dev/sundial/pkg/interval"
	"github.com/sundial-dev/sundial/pkg/recur"
	"github.com/sundial-dev/sundial/pkg/slotfind"
)

var (
	timezone = flag.String("timezone", "Local", "IANA timezone for input and output times")
	verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	version  = flag.Bool("version", false, "Show version")

	// expand flags
	start     = flag.String("start", "", "First occurrence start, e.g. 2026-09-01T18:00")
	end       = flag.String("end", "", "First occurrence end, e.g. 2026-09-01T19:00")
	frequency = flag.String("frequency", "weekly", "Recurrence frequency: daily, weekly, biweekly, monthly")
	interval_ = flag.Int("interval", 1, "Recurrence interval multiplier")
	weekdays  = flag.String("weekdays", "", "Comma-separated weekdays for weekly rules, e.g. mon,wed")
	until     = flag.String("until", "", "Inclusive cutoff date, e.g. 2026-12-20")
	maxOcc    = flag.Int("max", 0, "Maximum occurrences (0 uses the default cap)")
	except    = flag.String("except", "", "Comma-separated dates or date ranges to skip, e.g. 2026-10-01,2026-10-12:2026-10-16")

	// slots flags
	icsPath  = flag.String("ics", "", "ICS file with busy events for slot search")
	duration = flag.Int("duration", 60, "Slot duration in minutes")
	count    = flag.Int("count", 1, "Number of slots wanted")
	timeRng  = flag.String("range", "this_week", "Search range: today, next_3_days, this_week")
	prefer   = flag.String("prefer", "", "Time-of-day preference: morning, afternoon, evening")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("sundial CLI v1.0.0")
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		fail("invalid timezone %q", *timezone)
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <expand|slots>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	switch args[0] {
	case "expand":
		runExpand(loc)
	case "slots":
		runSlots(loc, logger)
	default:
		fail("unknown command %q (want expand or slots)", args[0])
	}
}

func runExpand(loc *time.Location) {
	if *start == "" || *end == "" {
		fail("expand requires -start and -end")
	}
	startAt, err := parseTime(*start, loc)
	if err != nil {
		fail("invalid -start: %v", err)
	}
	endAt, err := parseTime(*end, loc)
	if err != nil {
		fail("invalid -end: %v", err)
	}

	freq, err := recur.ParseFrequency(*frequency)
	if err != nil {
		fail("invalid -frequency %q", *frequency)
	}
	rule := recur.Rule{
		Frequency:      freq,
		Interval:       *interval_,
		MaxOccurrences: *maxOcc,
	}
	if *weekdays != "" {
		rule.Weekdays = recur.ParseWeekdays(strings.Split(*weekdays, ","))
	}
	if *until != "" {
		cutoff, err := time.ParseInLocation("2006-01-02", *until, loc)
		if err != nil {
			fail("invalid -until: %v", err)
		}
		rule.Until = cutoff
	}
	if *except != "" {
		rule.Exceptions, err = parseExceptions(*except, loc)
		if err != nil {
			fail("invalid -except: %v", err)
		}
	}

	occurrences, err := recur.Expand(startAt, endAt, rule)
	if err != nil {
		fail("expansion failed: %v", err)
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("%d occurrence(s), %s every %d\n", len(occurrences), freq, max(rule.Interval, 1))
	for i, occ := range occurrences {
		fmt.Printf("  %3d  %s  %s - %s\n",
			i+1,
			color.New(color.FgGreen).Sprint(occ.Start.Format("Mon 2006-01-02")),
			occ.Start.Format("15:04"),
			occ.End.Format("15:04"))
	}
}

func runSlots(loc *time.Location, logger *slog.Logger) {
	var pref slotfind.Preference
	switch *prefer {
	case "", "none":
		pref = slotfind.NoPreference
	case "morning":
		pref = slotfind.Morning
	case "afternoon":
		pref = slotfind.Afternoon
	case "evening":
		pref = slotfind.Evening
	default:
		fail("invalid -prefer %q", *prefer)
	}

	req := slotfind.Request{
		Title:           "slot search",
		DurationMinutes: *duration,
		Count:           *count,
		TimeRange:       slotfind.TimeRange(*timeRng),
		Preference:      pref,
	}

	var busy []interval.Interval
	if *icsPath != "" {
		data, err := os.ReadFile(*icsPath)
		if err != nil {
			fail("reading %s: %v", *icsPath, err)
		}
		events, err := icsfeed.ParseFeed(icsfeed.Source{ID: "file", Name: "file"}, data)
		if err != nil {
			fail("parsing %s: %v", *icsPath, err)
		}
		for _, ev := range events {
			if ev.AllDay {
				continue
			}
			iv, err := interval.New(ev.Start.In(loc), ev.End.In(loc))
			if err != nil {
				continue
			}
			busy = append(busy, iv)
		}
	}

	finder := slotfind.New(logger)
	candidates, err := finder.Find(time.Now().In(loc), req, busy)
	if err != nil {
		fail("slot search failed: %v", err)
	}
	if len(candidates) == 0 {
		color.New(color.FgYellow).Println("No free slots matched. Try a different range or duration.")
		return
	}

	color.New(color.FgCyan, color.Bold).Printf("%d candidate slot(s), busy events: %d\n", len(candidates), len(busy))
	for i, cand := range candidates {
		fmt.Printf("  %3d  %s  %s  %s\n",
			i+1,
			color.New(color.FgGreen).Sprint(cand.Day),
			cand.Time,
			color.New(color.FgHiBlack).Sprintf("score %.1f", cand.Score))
	}
}

// parseExceptions reads "date" and "start:end" tokens.
func parseExceptions(s string, loc *time.Location) ([]recur.Exception, error) {
	var exceptions []recur.Exception
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := strings.SplitN(token, ":", 2)
		exStart, err := time.ParseInLocation("2006-01-02", parts[0], loc)
		if err != nil {
			return nil, err
		}
		exEnd := exStart
		if len(parts) == 2 {
			exEnd, err = time.ParseInLocation("2006-01-02", parts[1], loc)
			if err != nil {
				return nil, err
			}
		}
		exceptions = append(exceptions, recur.Exception{Start: exStart, End: exEnd})
	}
	return exceptions, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
