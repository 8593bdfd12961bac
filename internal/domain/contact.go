package domain

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Sectors accepted by the contacts directory.
const (
	SectorConsulting = "CONSULTING"
	SectorFinance    = "FINANCE"
)

// ContactQuery holds the optional filters sent to the contacts directory.
type ContactQuery struct {
	Name              string `json:"name,omitempty"`
	CurrentCompany    string `json:"current_company,omitempty"`
	Sector            string `json:"sector,omitempty"`
	PreviousCompany   string `json:"previous_company,omitempty"`
	Title             string `json:"title,omitempty"`
	Role              string `json:"role,omitempty"`
	School            string `json:"school,omitempty"`
	UndergraduateYear int    `json:"undergraduate_year,omitempty"`
	City              string `json:"city,omitempty"`
}

// Values returns the non-empty filters as URL query values.
func (q ContactQuery) Values() url.Values {
	v := url.Values{}
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			v.Set(key, value)
		}
	}
	add("name", q.Name)
	add("current_company", q.CurrentCompany)
	add("sector", q.Sector)
	add("previous_company", q.PreviousCompany)
	add("title", q.Title)
	add("role", q.Role)
	add("school", q.School)
	if q.UndergraduateYear > 0 {
		v.Set("undergraduate_year", strconv.Itoa(q.UndergraduateYear))
	}
	add("city", q.City)
	return v
}

// IsEmpty reports whether no filter is set.
func (q ContactQuery) IsEmpty() bool {
	return len(q.Values()) == 0
}

// ContactRecord is one result returned by the contacts directory.
type ContactRecord struct {
	ID       any             `json:"id"`
	Document ContactDocument `json:"document"`
}

// ContactDocument is the profile payload of a ContactRecord.
type ContactDocument struct {
	ID                string          `json:"id"`
	FullName          string          `json:"full_name"`
	FirstName         string          `json:"first_name"`
	LastName          string          `json:"last_name"`
	Email             string          `json:"email"`
	Title             string          `json:"title"`
	CompanyName       string          `json:"company_name"`
	School            string          `json:"school"`
	City              string          `json:"city"`
	Country           string          `json:"country"`
	LinkedIn          string          `json:"linkedin"`
	PreviousCompanies string          `json:"previous_companies"`
	PreviousTitles    string          `json:"previous_titles"`
	CurrentCompany    *CurrentCompany `json:"current_company,omitempty"`
	Undergrad         *Undergrad      `json:"undergrad,omitempty"`
}

// CurrentCompany describes the contact's present employer.
type CurrentCompany struct {
	Company  string `json:"company"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

// Undergrad describes the contact's undergraduate program.
type Undergrad struct {
	School                 string          `json:"school"`
	DegreeName             string          `json:"degree_name"`
	FieldOfStudy           string          `json:"field_of_study"`
	ActivitiesAndSocieties string          `json:"activities_and_societies"`
	Description            string          `json:"description"`
	EndsAt                 json.RawMessage `json:"ends_at,omitempty"`
}

// GraduationYear extracts the year from ends_at, which the directory sends
// either as a {day, month, year} object, a bare number, or a string.
func (u Undergrad) GraduationYear() string {
	raw := strings.TrimSpace(string(u.EndsAt))
	if raw == "" || raw == "null" {
		return ""
	}
	var date struct {
		Year int `json:"year"`
	}
	if err := json.Unmarshal(u.EndsAt, &date); err == nil && date.Year > 0 {
		return strconv.Itoa(date.Year)
	}
	var n json.Number
	if err := json.Unmarshal(u.EndsAt, &n); err == nil {
		return n.String()
	}
	var s string
	if err := json.Unmarshal(u.EndsAt, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
