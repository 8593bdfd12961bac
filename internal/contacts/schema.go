package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/recruitu/networku/internal/domain"
	"github.com/recruitu/networku/internal/llm"
)

// FunctionName is the callable the model must invoke to look up contacts.
const FunctionName = "fetch_contacts"

// ErrInvalidArguments is returned when the model's call does not match the
// declared parameter schema.
var ErrInvalidArguments = errors.New("contacts: function arguments do not match schema")

// parameters is the JSON schema of ContactQuery, shared by the function
// declaration and argument validation.
var parameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{
			"type":        "string",
			"description": "Name of a user. This does a partial match to the user's full name, so you can specify just their first name, just their last name, or both.",
		},
		"current_company": map[string]any{
			"type":        "string",
			"description": "Name of the current company for a user.",
		},
		"sector": map[string]any{
			"type":        "string",
			"enum":        []any{domain.SectorConsulting, domain.SectorFinance},
			"description": "The sector the user is in; matches either CONSULTING or FINANCE.",
		},
		"previous_company": map[string]any{
			"type":        "string",
			"description": "The name of a previous company for a user.",
		},
		"title": map[string]any{
			"type":        "string",
			"description": "The title of the user (i.e., Analyst, Associate, Vice President).",
		},
		"role": map[string]any{
			"type":        "string",
			"description": "The role that the user has now or has had in the past.",
		},
		"school": map[string]any{
			"type":        "string",
			"description": "The school of the user.",
		},
		"undergraduate_year": map[string]any{
			"type":        "integer",
			"description": "The graduation year of the user's undergraduate degree.",
		},
		"city": map[string]any{
			"type":        "string",
			"description": "The city of the user.",
		},
	},
}

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(parameters))
	if err != nil {
		panic("contacts: invalid parameter schema: " + err.Error())
	}
	return s
}()

// Function returns the declaration offered to the model.
func Function() llm.Function {
	return llm.Function{
		Name:        FunctionName,
		Description: "Retrieve contacts from RecruitU's database of contacts.",
		Parameters:  parameters,
	}
}

// ParseArguments validates the model's raw arguments and converts them to a
// ContactQuery. Empty values are dropped before validation; sector casing is
// normalized.
func ParseArguments(raw string) (domain.ContactQuery, error) {
	var args map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return domain.ContactQuery{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	for key, val := range args {
		switch v := val.(type) {
		case nil:
			delete(args, key)
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				delete(args, key)
				continue
			}
			if key == "sector" {
				v = strings.ToUpper(v)
			}
			args[key] = v
		case json.Number:
			if v.String() == "0" {
				delete(args, key)
			}
		case bool:
			if !v {
				delete(args, key)
			}
		}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return domain.ContactQuery{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return domain.ContactQuery{}, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(errs, "; "))
	}

	data, err := json.Marshal(args)
	if err != nil {
		return domain.ContactQuery{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var q domain.ContactQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.ContactQuery{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return q, nil
}
