package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

type HTTPConfig struct {
	// BaseURL is the API root, e.g. "https://api.aladhan.com".
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource queries GET {base}/v1/timings/{dd-mm-yyyy}.
type HTTPSource struct {
	cfg    HTTPConfig
	client *http.Client
	log    logx.Logger
}

func NewHTTP(cfg HTTPConfig, log logx.Logger) *HTTPSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.aladhan.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "prayerbell"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type timingsResponse struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type timingsData struct {
	Timings map[string]string `json:"timings"`
	Meta    struct {
		Timezone string `json:"timezone"`
	} `json:"meta"`
}

var apiNames = map[string]prayer.Category{
	"Fajr":     prayer.Fajr,
	"Sunrise":  prayer.Sunrise,
	"Dhuhr":    prayer.Dhuhr,
	"Asr":      prayer.Asr,
	"Sunset":   prayer.Sunset,
	"Maghrib":  prayer.Maghrib,
	"Isha":     prayer.Isha,
	"Midnight": prayer.Midnight,
}

func (s *HTTPSource) Fetch(ctx context.Context, date time.Time, loc prayer.Location, method prayer.Method) (prayer.EventTimeSet, error) {
	tz := LoadLocation(loc, date.Location())
	day := prayer.DayStart(date.In(tz))

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("method", strconv.Itoa(int(method)))
	if loc.Timezone != "" {
		q.Set("timezonestring", loc.Timezone)
	}
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/timings/" + day.Format("02-01-2006") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return prayer.EventTimeSet{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return prayer.EventTimeSet{}, fmt.Errorf("fetch timings %s: %w", prayer.DayKey(day), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return prayer.EventTimeSet{}, fmt.Errorf("read timings %s: %w", prayer.DayKey(day), err)
	}
	if resp.StatusCode != http.StatusOK {
		return prayer.EventTimeSet{}, fmt.Errorf("fetch timings %s: http %d", prayer.DayKey(day), resp.StatusCode)
	}

	set, err := decodeTimings(body, day, tz)
	if err != nil {
		return prayer.EventTimeSet{}, fmt.Errorf("decode timings %s: %w", prayer.DayKey(day), err)
	}
	s.log.Debug("timings fetched",
		logx.String("date", prayer.DayKey(day)),
		logx.String("location", loc.String()),
		logx.Int("events", set.Len()),
		logx.Duration("took", time.Since(start)),
	)
	return set, nil
}

func decodeTimings(body []byte, day time.Time, tz *time.Location) (prayer.EventTimeSet, error) {
	var env timingsResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return prayer.EventTimeSet{}, err
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return prayer.EventTimeSet{}, fmt.Errorf("api code %d (%s)", env.Code, env.Status)
	}
	var data timingsData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return prayer.EventTimeSet{}, err
	}
	if data.Meta.Timezone != "" && tz == time.Local {
		if l, err := time.LoadLocation(data.Meta.Timezone); err == nil {
			tz = l
			day = prayer.DayStart(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, l))
		}
	}
	return ParseDay(day, tz, data.Timings)
}

// ParseDay converts "HH:MM" strings (an optional " (TZ)" suffix is ignored)
// into instants on day. Midnight earlier than Sunset belongs to the next
// civil day.
func ParseDay(day time.Time, tz *time.Location, raw map[string]string) (prayer.EventTimeSet, error) {
	if tz == nil {
		tz = day.Location()
	}
	y, m, d := day.Date()
	times := map[prayer.Category]time.Time{}
	for name, v := range raw {
		c, ok := apiNames[name]
		if !ok {
			continue
		}
		hh, mm, err := parseClock(v)
		if err != nil {
			return prayer.EventTimeSet{}, fmt.Errorf("%s: %w", name, err)
		}
		times[c] = time.Date(y, m, d, hh, mm, 0, 0, tz)
	}
	if len(times) == 0 {
		return prayer.EventTimeSet{}, ErrNoData
	}
	if mid, ok := times[prayer.Midnight]; ok {
		ref, ok := times[prayer.Sunset]
		if !ok {
			ref, ok = times[prayer.Maghrib]
		}
		if ok && !mid.After(ref) {
			times[prayer.Midnight] = mid.AddDate(0, 0, 1)
		}
	}
	return prayer.NewEventTimeSet(time.Date(y, m, d, 0, 0, 0, 0, tz), times), nil
}

func parseClock(v string) (int, int, error) {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, 0, errors.New("want HH:MM, got " + strconv.Quote(v))
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hh, mm, nil
}
