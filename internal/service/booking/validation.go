package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/reference"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultAdvanceDays = 120
	dateLayout         = "2006-01-02"
)

const mobileRule = "required,number,len=10"

var validate = validator.New()

// journey is a booking request resolved against the reference data.
type journey struct {
	train      *reference.Train
	quota      reference.Quota
	doj        time.Time
	distanceKM int
	departure  time.Time
}

func (s *BookingService) today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

// resolveJourney checks everything about a request that does not depend on seat
// availability. requireContact is false for fare quotes.
func (s *BookingService) resolveJourney(req domain.BookingRequest, requireContact bool) (journey, error) {
	var j journey

	if err := validatePassengers(req.Passengers); err != nil {
		return j, err
	}

	train, err := s.reference.Train(req.TrainNumber)
	if err != nil {
		return j, domain.Invalid("train_number", domain.ErrNotFound, "unknown train %q", req.TrainNumber)
	}
	j.train = train

	doj, err := time.ParseInLocation(dateLayout, req.DOJ, s.location)
	if err != nil {
		return j, domain.Invalid("doj", nil, "journey date must be YYYY-MM-DD")
	}
	today := s.today()
	if doj.Before(today) {
		return j, domain.Invalid("doj", nil, "journey date %s is in the past", req.DOJ)
	}
	if doj.After(today.AddDate(0, 0, s.advanceDays)) {
		return j, domain.Invalid("doj", nil, "journey date %s is beyond the %d-day reservation window", req.DOJ, s.advanceDays)
	}
	j.doj = doj

	if j.distanceKM, err = train.Distance(req.Source, req.Destination); err != nil {
		return j, err
	}
	if _, err := train.Capacity(req.CoachCode, req.QuotaCode); err != nil {
		return j, err
	}
	quota, ok := s.reference.Quota(req.QuotaCode)
	if !ok {
		return j, domain.Invalid("quota_code", domain.ErrInvalidQuota, "unknown quota %q", req.QuotaCode)
	}
	j.quota = quota
	if err := checkEligibility(quota, req.Passengers); err != nil {
		return j, err
	}
	if quota.OpensDaysBefore > 0 && doj.After(today.AddDate(0, 0, quota.OpensDaysBefore)) {
		return j, domain.Invalid("quota_code", domain.ErrInvalidQuota, "%s booking opens %d day(s) before the journey", quota.Name, quota.OpensDaysBefore)
	}

	if j.departure, err = train.DepartureAt(req.Source, doj); err != nil {
		return j, err
	}
	if j.departure.Before(s.now()) {
		return j, domain.Invalid("doj", nil, "train %s left %s at %s", train.Number, req.Source, j.departure.In(s.location).Format("2006-01-02 15:04"))
	}

	if requireContact && validate.Var(req.Contact.Mobile, mobileRule) != nil {
		return j, domain.Invalid("contact.mobile", nil, "mobile must be 10 digits")
	}
	return j, nil
}

func validatePassengers(passengers []domain.PassengerDetails) error {
	if len(passengers) == 0 {
		return domain.Invalid("passengers", domain.ErrEmptyPassengerList, "at least one passenger is required")
	}
	if len(passengers) > domain.MaxPassengers {
		return domain.Invalid("passengers", domain.ErrTooManyPassengers, "at most %d passengers per booking", domain.MaxPassengers)
	}
	for i, p := range passengers {
		field := fmt.Sprintf("passengers[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			return domain.Invalid(field+".name", nil, "name is required")
		}
		if p.Age < domain.MinAge || p.Age > domain.MaxAge {
			return domain.Invalid(field+".age", domain.ErrInvalidAge, "age %d outside %d-%d", p.Age, domain.MinAge, domain.MaxAge)
		}
		if !p.Gender.Valid() {
			return domain.Invalid(field+".gender", nil, "gender must be M, F or T")
		}
	}
	return nil
}

func checkEligibility(q reference.Quota, passengers []domain.PassengerDetails) error {
	if len(passengers) > q.MaxPassengers {
		return domain.Invalid("passengers", domain.ErrTooManyPassengers, "%s allows at most %d passengers", q.Name, q.MaxPassengers)
	}
	for i, p := range passengers {
		var ok bool
		switch q.Eligibility {
		case reference.EligibilityLadies:
			ok = p.Gender == domain.GenderFemale || p.IsChild()
		case reference.EligibilitySenior:
			ok = p.IsSenior()
		case reference.EligibilityPWD:
			ok = p.IsPWD
		default:
			ok = true
		}
		if !ok {
			return domain.Invalid(fmt.Sprintf("passengers[%d]", i), domain.ErrInvalidQuota, "passenger %q is not eligible for the %s quota", p.Name, q.Name)
		}
	}
	return nil
}
