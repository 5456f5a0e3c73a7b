package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// dateLayout is the ISO 8601 calendar date format used for dates of birth.
const dateLayout = "2006-01-02"

// Profile field limits.
const (
	maxNameLength    = 100
	maxAddressLength = 500
)

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ProfileUpdate is the owner's replacement for every profile field.
// All four fields are required.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Address     *string `json:"address"`
}

// Validate checks the update and returns the Profile it describes.
// The date of birth may be today but not later (relative to now, UTC).
func (u ProfileUpdate) Validate(now time.Time) (Profile, error) {
	var p Profile
	var errs []string

	text := func(field string, v *string, maxLen int) *string {
		if v == nil {
			errs = append(errs, field+" is required")
			return nil
		}
		cleaned, msg := cleanText(field, *v, maxLen)
		if msg != "" {
			errs = append(errs, msg)
		}
		return &cleaned
	}

	p.FirstName = text("first_name", u.FirstName, maxNameLength)
	p.LastName = text("last_name", u.LastName, maxNameLength)
	p.Address = text("address", u.Address, maxAddressLength)

	if u.DateOfBirth == nil {
		errs = append(errs, "date_of_birth is required")
	} else {
		dob, err := ParseDate(strings.TrimSpace(*u.DateOfBirth))
		switch {
		case err != nil:
			errs = append(errs, "date_of_birth must be a YYYY-MM-DD date")
		case dob.After(startOfDay(now)):
			errs = append(errs, "date_of_birth must not be in the future")
		default:
			p.DateOfBirth = &dob
		}
	}

	if len(errs) > 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
	}
	return p, nil
}

// PublicProfile is what anyone may see about an account.
type PublicProfile struct {
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// OwnerProfile is the full profile, visible only to the account owner.
type OwnerProfile struct {
	PublicProfile
	DateOfBirth *Date   `json:"date_of_birth"`
	Address     *string `json:"address"`
}

// PublicView returns the fields visible to any caller.
func (a *Account) PublicView() PublicProfile {
	return PublicProfile{
		Email:     a.Identity,
		FirstName: a.Profile.FirstName,
		LastName:  a.Profile.LastName,
	}
}

// OwnerView returns every profile field.
func (a *Account) OwnerView() OwnerProfile {
	return OwnerProfile{
		PublicProfile: a.PublicView(),
		DateOfBirth:   a.Profile.DateOfBirth,
		Address:       a.Profile.Address,
	}
}

func cleanText(field, v string, maxLen int) (string, string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return v, field + " must not be blank"
	}
	if utf8.RuneCountInString(v) > maxLen {
		return v, fmt.Sprintf("%s must be at most %d characters", field, maxLen)
	}
	return v, ""
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
