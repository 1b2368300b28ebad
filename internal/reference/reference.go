// Package reference holds the static lookup tables the engine consumes: stations,
// coach classes with per-km rates, quotas and the train schedules with their seat
// capacities. The tables are read once at startup and never mutated.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var defaultData []byte

type Layout string

const (
	LayoutSleeper  Layout = "sleeper"
	LayoutTwoTier  Layout = "two_tier"
	LayoutFirst    Layout = "first"
	LayoutChair    Layout = "chair"
	LayoutUnmarked Layout = ""
)

var berthCycles = map[Layout][]domain.BerthType{
	LayoutSleeper: {domain.BerthLower, domain.BerthMiddle, domain.BerthUpper, domain.BerthLower, domain.BerthMiddle, domain.BerthUpper, domain.BerthSideLower, domain.BerthSideUpper},
	LayoutTwoTier: {domain.BerthLower, domain.BerthUpper, domain.BerthLower, domain.BerthUpper, domain.BerthSideLower, domain.BerthSideUpper},
	LayoutFirst:   {domain.BerthLower, domain.BerthUpper, domain.BerthLower, domain.BerthUpper},
	LayoutChair:   {domain.BerthWindowSeat, domain.BerthMiddleSeat, domain.BerthAisleSeat, domain.BerthAisleSeat, domain.BerthMiddleSeat, domain.BerthWindowSeat},
}

// Berth maps a 1-based seat number onto the layout's repeating bay.
func (l Layout) Berth(seat int) domain.BerthType {
	cycle, ok := berthCycles[l]
	if !ok || seat <= 0 {
		return domain.BerthUnspecified
	}
	return cycle[(seat-1)%len(cycle)]
}

// RACBerth is the berth RAC passengers share.
func (l Layout) RACBerth() domain.BerthType {
	switch l {
	case LayoutSleeper, LayoutTwoTier:
		return domain.BerthSideLower
	}
	return domain.BerthUnspecified
}

type Eligibility string

const (
	EligibilityAny    Eligibility = ""
	EligibilityLadies Eligibility = "ladies"
	EligibilitySenior Eligibility = "senior"
	EligibilityPWD    Eligibility = "pwd"
)

type Station struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

type Coach struct {
	Code      string
	Name      string
	RatePerKM decimal.Decimal
	Layout    Layout
}

type Quota struct {
	Code              string
	Name              string
	ReservationCharge decimal.Decimal
	Eligibility       Eligibility
	MaxPassengers     int
	// OpensDaysBefore limits how early the quota can be booked; zero means the
	// general advance reservation window applies.
	OpensDaysBefore int
}

type Stop struct {
	Station    string `yaml:"station"`
	DistanceKM int    `yaml:"distance_km"`
	Departure  string `yaml:"departure"`
}

type Train struct {
	Number  string
	Name    string
	Route   []Stop
	Coaches map[string]map[string]domain.PoolCapacity
}

type Data struct {
	stations map[string]Station
	coaches  map[string]Coach
	quotas   map[string]Quota
	trains   map[string]*Train
}

type fileFormat struct {
	Stations []Station `yaml:"stations"`
	Coaches  []struct {
		Code      string `yaml:"code"`
		Name      string `yaml:"name"`
		RatePerKM string `yaml:"rate_per_km"`
		Layout    Layout `yaml:"layout"`
	} `yaml:"coaches"`
	Quotas []struct {
		Code              string      `yaml:"code"`
		Name              string      `yaml:"name"`
		ReservationCharge string      `yaml:"reservation_charge"`
		Eligibility       Eligibility `yaml:"eligibility"`
		MaxPassengers     int         `yaml:"max_passengers"`
		OpensDaysBefore   int         `yaml:"opens_days_before"`
		RACCap            int         `yaml:"rac_cap"`
		WaitlistCap       int         `yaml:"waitlist_cap"`
	} `yaml:"quotas"`
	Trains []struct {
		Number  string `yaml:"number"`
		Name    string `yaml:"name"`
		Route   []Stop `yaml:"route"`
		Coaches []struct {
			Code   string `yaml:"code"`
			Quotas map[string]struct {
				Seats       int  `yaml:"seats"`
				RACCap      *int `yaml:"rac_cap"`
				WaitlistCap *int `yaml:"waitlist_cap"`
			} `yaml:"quotas"`
		} `yaml:"coaches"`
	} `yaml:"trains"`
}

// Load reads reference data from path, or the embedded tables when path is empty.
func Load(path string) (*Data, error) {
	if path == "" {
		return Parse(defaultData)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Data, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}

	d := &Data{
		stations: make(map[string]Station, len(f.Stations)),
		coaches:  make(map[string]Coach, len(f.Coaches)),
		quotas:   make(map[string]Quota, len(f.Quotas)),
		trains:   make(map[string]*Train, len(f.Trains)),
	}
	for _, s := range f.Stations {
		d.stations[strings.ToUpper(s.Code)] = s
	}
	for _, c := range f.Coaches {
		rate, err := decimal.NewFromString(c.RatePerKM)
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("coach %s: invalid rate_per_km %q", c.Code, c.RatePerKM)
		}
		d.coaches[c.Code] = Coach{Code: c.Code, Name: c.Name, RatePerKM: rate, Layout: c.Layout}
	}

	type caps struct{ rac, wl int }
	quotaCaps := make(map[string]caps, len(f.Quotas))
	for _, q := range f.Quotas {
		charge, err := decimal.NewFromString(q.ReservationCharge)
		if err != nil || charge.IsNegative() {
			return nil, fmt.Errorf("quota %s: invalid reservation_charge %q", q.Code, q.ReservationCharge)
		}
		maxPassengers := q.MaxPassengers
		if maxPassengers <= 0 || maxPassengers > domain.MaxPassengers {
			maxPassengers = domain.MaxPassengers
		}
		d.quotas[q.Code] = Quota{
			Code:              q.Code,
			Name:              q.Name,
			ReservationCharge: charge,
			Eligibility:       q.Eligibility,
			MaxPassengers:     maxPassengers,
			OpensDaysBefore:   q.OpensDaysBefore,
		}
		quotaCaps[q.Code] = caps{rac: q.RACCap, wl: q.WaitlistCap}
	}

	for _, t := range f.Trains {
		if len(t.Route) < 2 {
			return nil, fmt.Errorf("train %s: route needs at least two stops", t.Number)
		}
		for i, s := range t.Route {
			if _, ok := d.stations[s.Station]; !ok {
				return nil, fmt.Errorf("train %s: unknown station %s", t.Number, s.Station)
			}
			if i > 0 && s.DistanceKM <= t.Route[i-1].DistanceKM {
				return nil, fmt.Errorf("train %s: distances must increase along the route", t.Number)
			}
			if _, err := time.Parse("15:04", s.Departure); err != nil && i < len(t.Route)-1 {
				return nil, fmt.Errorf("train %s: invalid departure %q at %s", t.Number, s.Departure, s.Station)
			}
		}
		train := &Train{
			Number:  t.Number,
			Name:    t.Name,
			Route:   t.Route,
			Coaches: make(map[string]map[string]domain.PoolCapacity, len(t.Coaches)),
		}
		for _, c := range t.Coaches {
			if _, ok := d.coaches[c.Code]; !ok {
				return nil, fmt.Errorf("train %s: unknown coach %s", t.Number, c.Code)
			}
			quotas := make(map[string]domain.PoolCapacity, len(c.Quotas))
			for code, q := range c.Quotas {
				def, ok := quotaCaps[code]
				if !ok {
					return nil, fmt.Errorf("train %s coach %s: unknown quota %s", t.Number, c.Code, code)
				}
				capacity := domain.PoolCapacity{TotalSeats: q.Seats, RACCap: def.rac, WaitlistCap: def.wl}
				if q.RACCap != nil {
					capacity.RACCap = *q.RACCap
				}
				if q.WaitlistCap != nil {
					capacity.WaitlistCap = *q.WaitlistCap
				}
				if capacity.TotalSeats < 0 || capacity.RACCap < 0 || capacity.WaitlistCap < 0 {
					return nil, fmt.Errorf("train %s coach %s quota %s: negative capacity", t.Number, c.Code, code)
				}
				quotas[code] = capacity
			}
			train.Coaches[c.Code] = quotas
		}
		d.trains[t.Number] = train
	}
	return d, nil
}

func (d *Data) Station(code string) (Station, bool) {
	s, ok := d.stations[strings.ToUpper(code)]
	return s, ok
}

func (d *Data) Coach(code string) (Coach, bool) {
	c, ok := d.coaches[code]
	return c, ok
}

func (d *Data) Quota(code string) (Quota, bool) {
	q, ok := d.quotas[code]
	return q, ok
}

func (d *Data) Train(number string) (*Train, error) {
	t, ok := d.trains[number]
	if !ok {
		return nil, fmt.Errorf("train %s: %w", number, domain.ErrNotFound)
	}
	return t, nil
}

// PoolCapacity sizes the seat pool for key; the journey date is not consulted.
func (d *Data) PoolCapacity(key domain.PoolKey) (domain.PoolCapacity, error) {
	t, err := d.Train(key.TrainNumber)
	if err != nil {
		return domain.PoolCapacity{}, err
	}
	return t.Capacity(key.CoachCode, key.QuotaCode)
}

// Berth resolves the berth for a confirmed seat in the given coach class.
func (d *Data) Berth(coachCode string, seat int) domain.BerthType {
	c, ok := d.coaches[coachCode]
	if !ok {
		return domain.BerthUnspecified
	}
	return c.Layout.Berth(seat)
}

func (d *Data) RACBerth(coachCode string) domain.BerthType {
	c, ok := d.coaches[coachCode]
	if !ok {
		return domain.BerthUnspecified
	}
	return c.Layout.RACBerth()
}

func (t *Train) Capacity(coachCode, quotaCode string) (domain.PoolCapacity, error) {
	quotas, ok := t.Coaches[coachCode]
	if !ok {
		return domain.PoolCapacity{}, domain.Invalid("coach_code", domain.ErrInvalidCoach, "train %s has no coach %s", t.Number, coachCode)
	}
	capacity, ok := quotas[quotaCode]
	if !ok {
		return domain.PoolCapacity{}, domain.Invalid("quota_code", domain.ErrInvalidQuota, "quota %s is not offered in coach %s of train %s", quotaCode, coachCode, t.Number)
	}
	return capacity, nil
}

func (t *Train) stopIndex(station string) int {
	station = strings.ToUpper(station)
	for i, s := range t.Route {
		if s.Station == station {
			return i
		}
	}
	return -1
}

// Distance returns the chargeable distance between two stops of the route.
func (t *Train) Distance(source, destination string) (int, error) {
	from := t.stopIndex(source)
	if from < 0 {
		return 0, domain.Invalid("source", domain.ErrNotFound, "train %s does not stop at %s", t.Number, source)
	}
	to := t.stopIndex(destination)
	if to < 0 {
		return 0, domain.Invalid("destination", domain.ErrNotFound, "train %s does not stop at %s", t.Number, destination)
	}
	if to <= from {
		return 0, domain.Invalid("destination", domain.ErrInvalidDistance, "%s is not after %s on train %s", destination, source, t.Number)
	}
	return t.Route[to].DistanceKM - t.Route[from].DistanceKM, nil
}

// DepartureAt is the scheduled departure from source on the journey date, which is
// the boarding date at source.
func (t *Train) DepartureAt(source string, doj time.Time) (time.Time, error) {
	i := t.stopIndex(source)
	if i < 0 || i == len(t.Route)-1 {
		return time.Time{}, domain.Invalid("source", domain.ErrNotFound, "train %s does not depart from %s", t.Number, source)
	}
	hm, err := time.Parse("15:04", t.Route[i].Departure)
	if err != nil {
		return time.Time{}, fmt.Errorf("train %s: departure at %s: %w", t.Number, source, err)
	}
	y, m, day := doj.Date()
	return time.Date(y, m, day, hm.Hour(), hm.Minute(), 0, 0, doj.Location()), nil
}
