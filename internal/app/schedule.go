package app

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "notifysync/pkg/logx"
)

// ScheduleKind is the normalized kind of a resync schedule string.
type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
)

// ParsedSchedule is a resync schedule: a cron expression or a fixed interval.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "@hourly", "@every 2m"
//   - duration: "5m", "1h30m"
//   - HH:MM interval: "00:15" (15 minutes)
//
// A "cron:" prefix forces cron parsing; "interval:" or "every:" forces an
// interval.
type ParsedSchedule struct {
	Kind   ScheduleKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses raw and validates cron expressions with the same
// parser the resync job uses.
func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSchedule(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSchedule(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if reHHMM.MatchString(s) || isDuration(s) {
		return parseIntervalSchedule(s)
	}
	return ParsedSchedule{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:15', or duration like '5m')",
		raw,
	)
}

func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func parseCron(expr string) (ParsedSchedule, error) {
	if expr == "" {
		return ParsedSchedule{}, fmt.Errorf("cron schedule required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedSchedule{Kind: ScheduleCron, Cron: expr, Source: "cron"}, nil
}

func parseIntervalSchedule(v string) (ParsedSchedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSchedule{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSchedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return ParsedSchedule{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '5m')", v)
		}
	}
	if d <= 0 {
		return ParsedSchedule{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSchedule{Kind: ScheduleInterval, Every: d, Source: src}, nil
}

// Schedule returns the cron schedule. Intervals get a first run spread over
// up to maxStartupSpread so many clients started together do not hit the
// backend at once.
func (p ParsedSchedule) Schedule(now time.Time, tag string) (cron.Schedule, time.Duration, error) {
	if p.Kind == ScheduleCron {
		s, err := cronParser.Parse(p.Cron)
		return s, 0, err
	}
	s, jitter := intervalWithSpread(p.Every, now, tag)
	return s, jitter, nil
}

const maxStartupSpread = 30 * time.Second

// spreadSchedule overrides the first run time, then delegates to base.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func intervalWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spread := every
	if spread > maxStartupSpread {
		spread = maxStartupSpread
	}
	if spread <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	jitter := time.Duration(rng.Int63n(int64(spread)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

// cronLogger routes cron's key/value logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Warn("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
