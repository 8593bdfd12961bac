package contacts

import (
	"strings"

	"github.com/recruitu/networku/internal/domain"
)

// Separator is the line placed between shaped contacts.
const Separator = "---"

// Shape renders records as compact text blocks for the prompt. Empty fields
// are omitted and blocks are joined by the Separator line.
func Shape(records []domain.ContactRecord) string {
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		if block := shapeOne(r.Document); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n"+Separator+"\n")
}

func shapeOne(d domain.ContactDocument) string {
	var b strings.Builder
	line := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	name := d.FullName
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSpace(d.FirstName + " " + d.LastName)
	}
	line("Name", name)

	company, title, city := d.CompanyName, d.Title, d.City
	if cc := d.CurrentCompany; cc != nil {
		company = firstNonEmpty(cc.Company, company)
		title = firstNonEmpty(cc.Title, title)
		city = firstNonEmpty(city, cc.Location)
	}
	line("City", city)
	line("Country", d.Country)
	line("Current company", company)
	line("Current title", title)
	line("School", d.School)
	line("Email", d.Email)
	line("LinkedIn", d.LinkedIn)
	line("Previous companies", d.PreviousCompanies)
	line("Previous titles", d.PreviousTitles)

	if u := d.Undergrad; u != nil {
		line("Undergraduate school", u.School)
		line("Undergraduate degree", u.DegreeName)
		line("Undergraduate major", u.FieldOfStudy)
		line("Undergraduate graduation year", u.GraduationYear())
		line("Undergraduate activities", u.ActivitiesAndSocieties)
		line("Undergraduate description", u.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
